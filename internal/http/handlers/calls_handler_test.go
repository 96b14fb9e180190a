package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/http/middleware"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/services"
)

func TestListCalls_PaginationAndETag(t *testing.T) {
	last := time.Date(2025, 9, 16, 8, 0, 0, 0, time.UTC)
	var gotQuery services.CallQuery
	calls := stubCalls{
		stats: func(context.Context, *domain.Principal) (int64, *time.Time, error) { return 45, &last, nil },
		list: func(_ context.Context, _ *domain.Principal, q services.CallQuery) (*services.CallPage, error) {
			gotQuery = q
			return &services.CallPage{Calls: []domain.CallRecord{{ID: "c1"}}, Total: 45, Page: q.Page, Limit: q.Limit}, nil
		},
	}
	h := New(Services{Calls: calls})
	r := newTestEngine(mgrP)
	r.GET("/calls", h.ListCalls)

	w := doJSON(r, http.MethodGet, "/calls?page=2&search=%D0%98%D0%B2%D0%B0%D0%BD", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (%s)", w.Code, w.Body.String())
	}
	if gotQuery.Page != 2 || gotQuery.Limit != 20 || gotQuery.SortBy != "createdAt" || gotQuery.SortOrder != "desc" || gotQuery.Search != "Иван" {
		t.Fatalf("query defaults not applied: %+v", gotQuery)
	}
	var resp ListCallsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	want := Pagination{Page: 2, Limit: 20, TotalCount: 45, TotalPages: 3, HasNextPage: true, HasPrevPage: true}
	if resp.Pagination != want || len(resp.Calls) != 1 {
		t.Fatalf("resp = %+v", resp)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	w = doJSON(r, http.MethodGet, "/calls?page=2&search=%D0%98%D0%B2%D0%B0%D0%BD", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional status = %d", w.Code)
	}
	w = doJSON(r, http.MethodGet, "/calls?page=3&search=%D0%98%D0%B2%D0%B0%D0%BD", "", "If-None-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("other page must not match the ETag, got %d", w.Code)
	}
}

func TestListCalls_BadQuery(t *testing.T) {
	calls := stubCalls{
		list: func(context.Context, *domain.Principal, services.CallQuery) (*services.CallPage, error) {
			return nil, &services.ValidationError{Fields: []services.FieldError{{Field: "limit", Message: "too big"}}}
		},
	}
	h := New(Services{Calls: calls})
	r := newTestEngine(mgrP)
	r.GET("/calls", h.ListCalls)

	for _, q := range []string{"page=abc", "limit=500"} {
		w := doJSON(r, http.MethodGet, "/calls?"+q, "")
		if er := decodeErr(t, w); w.Code != http.StatusBadRequest || er.Message != "Неверные параметры запроса" {
			t.Fatalf("%s: %d %+v", q, w.Code, er)
		}
	}
}

func TestCreateCall(t *testing.T) {
	calls := stubCalls{
		create: func(_ context.Context, p *domain.Principal, in services.CreateCallInput) (*domain.CallRecord, error) {
			if in.ID == "dup" {
				return nil, services.ErrDuplicateCall
			}
			return &domain.CallRecord{ID: in.ID.String(), DealID: in.DealID.String()}, nil
		},
	}
	h := New(Services{Calls: calls})
	r := newTestEngine(mgrP)
	r.POST("/calls", h.CreateCall)

	w := doJSON(r, http.MethodPost, "/calls", `{"id":123,"dealId":"D-1","createdAt":"16.09.2025 11:13","employeeName":"a","managerName":"b"}`)
	if w.Code != http.StatusCreated || decodeMap(t, w)["id"] != "123" {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(r, http.MethodPost, "/calls", `{"id":"dup"}`)
	if er := decodeErr(t, w); w.Code != http.StatusConflict || er.Message != "Звонок с таким ID уже существует" {
		t.Fatalf("duplicate: %d %+v", w.Code, er)
	}
}

func TestDeleteCalls(t *testing.T) {
	calls := stubCalls{
		del: func(_ context.Context, _ *domain.Principal, id string) (*domain.CallRecord, int64, error) {
			if id == "nope" {
				return nil, 0, services.ErrCallNotFound
			}
			return &domain.CallRecord{ID: id}, 2, nil
		},
		bulk: func(_ context.Context, _ *domain.Principal, ids []string) (*services.BulkDeleteResult, error) {
			return &services.BulkDeleteResult{DeletedCalls: int64(len(ids) - 1), DeletedReviews: 4, NotFoundIDs: ids[len(ids)-1:]}, nil
		},
	}
	h := New(Services{Calls: calls})
	r := newTestEngine(adminP)
	r.DELETE("/calls/:id", h.DeleteCall)
	r.POST("/calls/bulk-delete", h.BulkDeleteCalls)

	w := doJSON(r, http.MethodDelete, "/calls/c1", "")
	var del DeleteCallResponse
	_ = json.Unmarshal(w.Body.Bytes(), &del)
	if w.Code != http.StatusOK || del.Message != "Звонок успешно удален" || del.DeletedReviews != 2 || del.DeletedCall.ID != "c1" {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if w := doJSON(r, http.MethodDelete, "/calls/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown: %d", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/calls/bulk-delete", `{"callIds":["a","b","ghost"]}`)
	var bulk BulkDeleteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &bulk)
	if w.Code != http.StatusOK || bulk.Message != "Успешно удалено 2 звонков" || len(bulk.NotFoundIDs) != 1 || bulk.NotFoundIDs[0] != "ghost" {
		t.Fatalf("bulk: %d %s", w.Code, w.Body.String())
	}
	if w := doJSON(r, http.MethodPost, "/calls/bulk-delete", `{"callIds":"a"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("non-array ids: %d", w.Code)
	}
}

func TestClearAllCalls(t *testing.T) {
	at := time.Date(2025, 9, 16, 9, 0, 0, 0, time.UTC)
	empty := false
	calls := stubCalls{
		clear: func(_ context.Context, p *domain.Principal, confirmation string) (*services.ClearAllResult, error) {
			if p.Role != domain.RoleAdministrator {
				return nil, rbac.ErrForbidden
			}
			if confirmation != services.ClearAllConfirmation {
				return nil, services.ErrConfirmationRequired
			}
			if empty {
				return &services.ClearAllResult{AlreadyEmpty: true}, nil
			}
			return &services.ClearAllResult{DeletedCalls: 3, DeletedReviews: 5, ClearedBy: p.Name, Timestamp: at}, nil
		},
	}
	h := New(Services{Calls: calls})

	mgr := newTestEngine(mgrP)
	mgr.POST("/calls/clear-all", h.ClearAllCalls)
	w := doJSON(mgr, http.MethodPost, "/calls/clear-all", `{"confirmation":"DELETE_ALL_CALLS"}`)
	if er := decodeErr(t, w); w.Code != http.StatusForbidden || er.Message != "Только администраторы могут очищать всю базу данных звонков" {
		t.Fatalf("manager: %d %+v", w.Code, er)
	}

	r := newTestEngine(adminP)
	r.POST("/calls/clear-all", h.ClearAllCalls)
	w = doJSON(r, http.MethodPost, "/calls/clear-all", `{"confirmation":"yes"}`)
	if er := decodeErr(t, w); w.Code != http.StatusBadRequest || er.Code != ErrCodeConfirmation {
		t.Fatalf("bad confirmation: %d %+v", w.Code, er)
	}

	w = doJSON(r, http.MethodPost, "/calls/clear-all", `{"confirmation":"DELETE_ALL_CALLS"}`)
	var res ClearAllResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	if w.Code != http.StatusOK || res.DeletedCalls != 3 || res.ClearedBy != "Админ" || res.Timestamp == nil || !res.Timestamp.Equal(at) {
		t.Fatalf("clear: %d %s", w.Code, w.Body.String())
	}

	empty = true
	w = doJSON(r, http.MethodPost, "/calls/clear-all", `{"confirmation":"DELETE_ALL_CALLS"}`)
	if m := decodeMap(t, w); w.Code != http.StatusOK || m["message"] != "База данных звонков уже пуста" {
		t.Fatalf("empty: %d %v", w.Code, m)
	}
}

func TestSendToAnalysis_Outcomes(t *testing.T) {
	review := &domain.CallReview{ID: "r1", CallID: "c1", Status: domain.ReviewFailed}
	tests := []struct {
		name   string
		res    *services.DispatchResult
		status int
		msg    string
	}{
		{
			name:   "delivered",
			res:    &services.DispatchResult{Review: review, Outcome: services.OutcomeDelivered, Status: 200, Body: json.RawMessage(`{"ok":true}`)},
			status: http.StatusOK,
			msg:    "Чек-лист успешно отправлен в n8n",
		},
		{
			name:   "rejected",
			res:    &services.DispatchResult{Review: review, Outcome: services.OutcomeRejected, Status: 503, StatusText: "Service Unavailable"},
			status: http.StatusUnprocessableEntity,
			msg:    "Ошибка n8n: 503 Service Unavailable",
		},
		{
			name:   "unreachable",
			res:    &services.DispatchResult{Review: review, Outcome: services.OutcomeUnreachable, Err: errors.New("dial tcp: refused")},
			status: http.StatusInternalServerError,
			msg:    "Ошибка отправки в n8n: dial tcp: refused",
		},
		{
			name: "unreachable replay",
			res: &services.DispatchResult{
				Review:   &domain.CallReview{ID: "r1", N8nResponse: []byte(`{"error":"timeout","timestamp":"2025-09-16T08:13:00Z"}`)},
				Outcome:  services.OutcomeUnreachable,
				Replayed: true,
			},
			status: http.StatusInternalServerError,
			msg:    "Ошибка отправки в n8n: timeout",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var gotKey string
			reviews := stubReviews{
				dispatch: func(_ context.Context, _ *domain.Principal, callID string, in services.DispatchInput, key string) (*services.DispatchResult, error) {
					gotKey = key
					return tc.res, nil
				},
			}
			h := New(Services{Reviews: reviews})
			r := newTestEngine(mgrP)
			r.POST("/calls/:id/send", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil), h.SendToAnalysis)

			w := doJSON(r, http.MethodPost, "/calls/c1/send", `{"templateId":"tpl"}`, middleware.HeaderIdempotencyKey, "key-1")
			if w.Code != tc.status {
				t.Fatalf("status = %d; want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			var resp DispatchResponse
			_ = json.Unmarshal(w.Body.Bytes(), &resp)
			if resp.Message != tc.msg || resp.Success != (tc.status == http.StatusOK) || resp.Review == nil {
				t.Fatalf("resp = %+v", resp)
			}
			if gotKey != "key-1" {
				t.Fatalf("idempotency key = %q", gotKey)
			}
			if replayed := w.Header().Get("Idempotency-Replayed") == "true"; replayed != tc.res.Replayed {
				t.Fatalf("replay header = %v", replayed)
			}
		})
	}
}

func TestSendToAnalysis_Errors(t *testing.T) {
	reviews := stubReviews{
		dispatch: func(_ context.Context, _ *domain.Principal, callID string, _ services.DispatchInput, _ string) (*services.DispatchResult, error) {
			switch callID {
			case "inactive":
				return nil, services.ErrTemplateInactive
			case "hidden":
				return nil, rbac.ErrForbidden
			}
			return nil, services.ErrCallNotFound
		},
	}
	h := New(Services{Reviews: reviews})
	r := newTestEngine(mgrP)
	r.POST("/calls/:id/send", h.SendToAnalysis)

	tests := []struct {
		id     string
		body   string
		status int
	}{
		{"c1", ``, http.StatusBadRequest},
		{"inactive", `{"templateId":"t"}`, http.StatusBadRequest},
		{"hidden", `{"templateId":"t"}`, http.StatusForbidden},
		{"missing", `{"templateId":"t"}`, http.StatusNotFound},
	}
	for _, tc := range tests {
		if w := doJSON(r, http.MethodPost, "/calls/"+tc.id+"/send", tc.body); w.Code != tc.status {
			t.Fatalf("%s: status = %d; want %d", tc.id, w.Code, tc.status)
		}
	}
}

func TestDeleteReview(t *testing.T) {
	reviews := stubReviews{
		del: func(_ context.Context, p *domain.Principal, callID, reviewID string) (*services.DeletedReview, error) {
			switch reviewID {
			case "other":
				return nil, rbac.ErrForbidden
			case "elsewhere":
				return nil, services.ErrReviewCallMismatch
			}
			return &services.DeletedReview{ID: reviewID, TemplateTitle: "Базовый", RequestedBy: p.Name}, nil
		},
	}
	h := New(Services{Reviews: reviews})
	r := newTestEngine(mgrP)
	r.DELETE("/calls/:id/reviews/:reviewId", h.DeleteReview)

	w := doJSON(r, http.MethodDelete, "/calls/c1/reviews/r1", "")
	var resp DeleteReviewResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || resp.Message != "Проверка успешно удалена" || resp.DeletedReview.RequestedBy != "Менеджер" {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodDelete, "/calls/c1/reviews/other", "")
	if er := decodeErr(t, w); w.Code != http.StatusForbidden || er.Message != "Недостаточно прав для удаления этой проверки" {
		t.Fatalf("forbidden: %d %+v", w.Code, er)
	}
	if w := doJSON(r, http.MethodDelete, "/calls/c1/reviews/elsewhere", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("mismatch: %d", w.Code)
	}
}
