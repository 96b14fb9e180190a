package repo

import (
	"context"
	"slices"
	"testing"
	"time"

	"gorm.io/datatypes"

	"github.com/tbourn/callqa-backend/internal/domain"
)

func TestCreateCall_Duplicate(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()

	c := &domain.CallRecord{ID: "c1", DealID: "d1", EmployeeName: "Ann", ManagerName: "Boss", CreatedAt: time.Now().UTC()}
	if err := CreateCall(ctx, db, c); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	dup := &domain.CallRecord{ID: "c1", DealID: "d2", EmployeeName: "Ann", ManagerName: "Boss"}
	if err := CreateCall(ctx, db, dup); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUpsertCall_UpdatesInPlace(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()
	at := time.Date(2025, 9, 16, 11, 13, 0, 0, time.UTC)

	first := &domain.CallRecord{ID: "c1", DealID: "d1", EmployeeName: "Ann", ManagerName: "Boss", CreatedAt: at, Payload: datatypes.JSON(`{"a":1}`)}
	if err := UpsertCall(ctx, db, first, true); err != nil {
		t.Fatalf("UpsertCall insert: %v", err)
	}
	second := &domain.CallRecord{ID: "c1", DealID: "d2", EmployeeName: "Ann", ManagerName: "Boss", CreatedAt: at.Add(time.Hour), Payload: datatypes.JSON(`{"a":2}`)}
	if err := UpsertCall(ctx, db, second, false); err != nil {
		t.Fatalf("UpsertCall update: %v", err)
	}

	n, _ := CountCalls(ctx, db)
	if n != 1 {
		t.Fatalf("expected one row, got %d", n)
	}
	got, err := GetCall(ctx, db, "c1")
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.DealID != "d2" || string(got.Payload) != `{"a":2}` {
		t.Fatalf("upsert did not update: %+v", got)
	}
	if !got.CreatedAt.Equal(at) {
		t.Fatalf("created_at changed to %v", got.CreatedAt)
	}
}

func TestGetCall_NotFound(t *testing.T) {
	db := newSchemaDB(t)
	if _, err := GetCall(context.Background(), db, "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListCalls_FiltersSortAndPage(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

	seedUser(t, db, "u1", "a@x", "Admin", domain.RoleAdministrator)
	seedTemplate(t, db, "tpl", "u1", true, true, base, "greet")
	seedCall(t, db, "c1", "Ann", base)
	seedCall(t, db, "c2", "Ann", base.Add(24*time.Hour))
	seedCall(t, db, "c3", "Bob", base.Add(48*time.Hour))
	seedReview(t, db, "r-old", "c2", "tpl", domain.ReviewFailed, base)
	seedReview(t, db, "r-new", "c2", "tpl", domain.ReviewSuccess, base.Add(time.Hour))

	ids := func(cs []domain.CallRecord) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.ID
		}
		return out
	}
	ann := "Ann"
	from := base.Add(12 * time.Hour)
	to := base.Add(48 * time.Hour)

	tests := []struct {
		name      string
		f         CallFilter
		want      []string
		wantTotal int64
	}{
		{"all newest first", CallFilter{SortDesc: true, Limit: 10}, []string{"c3", "c2", "c1"}, 3},
		{"scope", CallFilter{EmployeeName: &ann, SortDesc: true, Limit: 10}, []string{"c2", "c1"}, 2},
		{"search deal", CallFilter{Search: "deal-c3", Limit: 10}, []string{"c3"}, 1},
		{"search manager", CallFilter{Search: "Bos", Limit: 10}, []string{"c1", "c2", "c3"}, 3},
		{"range", CallFilter{From: &from, To: &to, Limit: 10}, []string{"c2"}, 1},
		{"sort employee asc", CallFilter{SortBy: "employeeName", Limit: 10}, []string{"c1", "c2", "c3"}, 3},
		{"unknown sort falls back", CallFilter{SortBy: "drop table", SortDesc: true, Limit: 10}, []string{"c3", "c2", "c1"}, 3},
		{"page 2", CallFilter{SortDesc: true, Offset: 2, Limit: 2}, []string{"c1"}, 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, total, err := ListCalls(ctx, db, tc.f)
			if err != nil {
				t.Fatalf("ListCalls: %v", err)
			}
			if total != tc.wantTotal || !slices.Equal(ids(got), tc.want) {
				t.Fatalf("got %v (total %d); want %v (total %d)", ids(got), total, tc.want, tc.wantTotal)
			}
		})
	}

	// Reviews are preloaded newest first with their template.
	got, _, _ := ListCalls(ctx, db, CallFilter{Search: "deal-c2", Limit: 1})
	if len(got) != 1 || len(got[0].Reviews) != 2 || got[0].Reviews[0].ID != "r-new" || got[0].Reviews[0].Template == nil {
		t.Fatalf("unexpected reviews: %+v", got)
	}
}

func TestDeleteCalls_RemovesReviews(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedCall(t, db, "c1", "Ann", now)
	seedCall(t, db, "c2", "Ann", now)
	seedReview(t, db, "r1", "c1", "tpl", domain.ReviewPending, now)
	seedReview(t, db, "r2", "c1", "tpl", domain.ReviewPending, now)
	seedReview(t, db, "r3", "c2", "tpl", domain.ReviewPending, now)

	existing, err := FindExistingCallIDs(ctx, db, []string{"c1", "zzz"})
	if err != nil || !slices.Equal(existing, []string{"c1"}) {
		t.Fatalf("FindExistingCallIDs = %v, %v", existing, err)
	}

	calls, reviews, err := DeleteCalls(ctx, db, []string{"c1"})
	if err != nil || calls != 1 || reviews != 2 {
		t.Fatalf("DeleteCalls = (%d, %d, %v); want (1, 2)", calls, reviews, err)
	}
	if n, _ := CountReviewsByCall(ctx, db, "c2"); n != 1 {
		t.Fatalf("c2 reviews = %d; want 1", n)
	}

	calls, reviews, err = DeleteAllCalls(ctx, db)
	if err != nil || calls != 1 || reviews != 1 {
		t.Fatalf("DeleteAllCalls = (%d, %d, %v); want (1, 1)", calls, reviews, err)
	}
	if n, _ := CountCalls(ctx, db); n != 0 {
		t.Fatalf("calls left = %d", n)
	}
}

func TestUpdateCallFields(t *testing.T) {
	db := newSchemaDB(t)
	ctx := context.Background()
	seedCall(t, db, "c1", "Ann", time.Now().UTC())

	if err := UpdateCallFields(ctx, db, "c1", map[string]any{"call_text": "hello"}); err != nil {
		t.Fatalf("UpdateCallFields: %v", err)
	}
	got, _ := GetCall(ctx, db, "c1")
	if got.CallText == nil || *got.CallText != "hello" {
		t.Fatalf("call_text not written: %+v", got.CallText)
	}
	if err := UpdateCallFields(ctx, db, "missing", map[string]any{"call_text": "x"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
