package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/callqa-backend/internal/auth"
	"github.com/tbourn/callqa-backend/internal/config"
	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/repo"
)

// minimal bcrypt cost keeps the tests fast
const testCost = 4

func TestUserService_CreateAndList(t *testing.T) {
	db := newServiceDB(t)
	svc := &UserService{DB: db, BcryptCost: testCost}
	ctx := context.Background()

	u, err := svc.Create(ctx, admin, CreateUserInput{Name: " Ольга ", Email: "Olga@Example.COM ", Password: "secret1", Role: domain.RoleSupervisor})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.Email != "olga@example.com" || u.Name != "Ольга" || !auth.CheckPassword(u.PasswordHash, "secret1") {
		t.Fatalf("user = %+v", u)
	}

	_, err = svc.Create(ctx, admin, CreateUserInput{Name: "Dup", Email: "OLGA@example.com", Password: "secret1", Role: domain.RoleSupervisor})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("duplicate: %v", err)
	}

	seedCall(t, db, "c1", "x", nil)
	seedTemplate(t, db, "tpl", true, false, "A")
	seedReview(t, db, "r1", "c1", "tpl", domain.ReviewSuccess, strp(manager.UserID), t0)

	views, err := svc.List(ctx, admin)
	if err != nil || len(views) != 4 {
		t.Fatalf("List: %d %v", len(views), err)
	}
	for _, v := range views {
		switch v.ID {
		case admin.UserID:
			if v.Count.CreatedChecklists != 1 {
				t.Fatalf("admin counts = %+v", v.Count)
			}
		case manager.UserID:
			if v.Count.RequestedReviews != 1 {
				t.Fatalf("manager counts = %+v", v.Count)
			}
		}
	}
}

func TestUserService_CreateValidationAndPermissions(t *testing.T) {
	db := newServiceDB(t)
	svc := &UserService{DB: db, BcryptCost: testCost}
	ctx := context.Background()

	tests := []struct {
		name  string
		in    CreateUserInput
		field string
	}{
		{"bad email", CreateUserInput{Name: "a", Email: "nope", Password: "secret1", Role: domain.RoleSupervisor}, "email"},
		{"short password", CreateUserInput{Name: "a", Email: "a@b.co", Password: "123", Role: domain.RoleSupervisor}, "password"},
		{"unknown role", CreateUserInput{Name: "a", Email: "a@b.co", Password: "secret1", Role: "ROOT"}, "role"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, admin, tc.in)
			ve := AsValidationError(err)
			if ve == nil || ve.Fields[0].Field != tc.field {
				t.Fatalf("err = %v; want field %s", err, tc.field)
			}
		})
	}

	if _, err := svc.List(ctx, manager); !errors.Is(err, rbac.ErrForbidden) {
		t.Fatalf("manager List: %v", err)
	}
}

func TestUserService_Update(t *testing.T) {
	db := newServiceDB(t)
	svc := &UserService{DB: db, BcryptCost: testCost}
	ctx := context.Background()

	role := domain.RoleSupervisor
	if _, err := svc.Update(ctx, admin, admin.UserID, UpdateUserInput{Role: &role}); !errors.Is(err, ErrOwnRoleChange) {
		t.Fatalf("own role: %v", err)
	}
	same := domain.RoleAdministrator
	if _, err := svc.Update(ctx, admin, admin.UserID, UpdateUserInput{Role: &same, Name: strp("Главный")}); err != nil {
		t.Fatalf("same role: %v", err)
	}

	taken := manager.UserID + "@example.com"
	if _, err := svc.Update(ctx, admin, supervisor.UserID, UpdateUserInput{Email: &taken}); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("taken email: %v", err)
	}

	padded := "  New.Mail@Example.COM "
	u, err := svc.Update(ctx, admin, supervisor.UserID, UpdateUserInput{Email: &padded})
	if err != nil {
		t.Fatalf("padded email: %v", err)
	}
	if u.Email != "new.mail@example.com" {
		t.Fatalf("email = %q", u.Email)
	}

	pw := "new-secret"
	u, err = svc.Update(ctx, admin, supervisor.UserID, UpdateUserInput{Role: &same, Password: &pw})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if u.Role != domain.RoleAdministrator || !auth.CheckPassword(u.PasswordHash, pw) {
		t.Fatalf("user = %+v", u)
	}

	if _, err := svc.Update(ctx, admin, "nope", UpdateUserInput{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown: %v", err)
	}
}

func TestUserService_Delete(t *testing.T) {
	db := newServiceDB(t)
	seedCall(t, db, "c1", "x", nil)
	seedTemplate(t, db, "tpl", true, false, "A")
	seedReview(t, db, "r1", "c1", "tpl", domain.ReviewSuccess, strp(manager.UserID), t0)
	svc := &UserService{DB: db, BcryptCost: testCost}
	ctx := context.Background()

	tests := []struct {
		name string
		id   string
		want error
	}{
		{"self", admin.UserID, ErrSelfDelete},
		{"has reviews", manager.UserID, ErrUserHasDependents},
		{"unknown", "nope", ErrUserNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.Delete(ctx, admin, tc.id); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v; want %v", err, tc.want)
			}
		})
	}

	if err := svc.Delete(ctx, admin, supervisor.UserID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetUser(ctx, db, supervisor.UserID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("user should be gone: %v", err)
	}
}

func TestUserService_Profile(t *testing.T) {
	db := newServiceDB(t)
	svc := &UserService{DB: db, BcryptCost: testCost}
	ctx := context.Background()

	hash, _ := auth.HashPassword("old-pass", testCost)
	if err := repo.UpdateUser(ctx, db, supervisor.UserID, map[string]any{"password_hash": hash}); err != nil {
		t.Fatalf("seed password: %v", err)
	}

	u, err := svc.Profile(ctx, supervisor)
	if err != nil || u.ID != supervisor.UserID {
		t.Fatalf("Profile: %+v %v", u, err)
	}
	if _, err := svc.Profile(ctx, nil); !errors.Is(err, rbac.ErrUnauthorized) {
		t.Fatalf("no session: %v", err)
	}

	t.Run("update profile", func(t *testing.T) {
		u, err := svc.UpdateProfile(ctx, supervisor, ProfileInput{Action: ActionUpdateProfile, Name: "Иван П.", Email: "IVAN@example.com"})
		if err != nil {
			t.Fatalf("UpdateProfile: %v", err)
		}
		if u.Name != "Иван П." || u.Email != "ivan@example.com" {
			t.Fatalf("user = %+v", u)
		}
		_, err = svc.UpdateProfile(ctx, supervisor, ProfileInput{Action: ActionUpdateProfile, Name: "x", Email: admin.UserID + "@example.com"})
		if !errors.Is(err, ErrDuplicateEmail) {
			t.Fatalf("taken: %v", err)
		}
	})

	t.Run("change password", func(t *testing.T) {
		in := ProfileInput{Action: ActionChangePassword, CurrentPassword: "wrong", NewPassword: "new-pass", ConfirmPassword: "new-pass"}
		if _, err := svc.UpdateProfile(ctx, supervisor, in); !errors.Is(err, ErrWrongPassword) {
			t.Fatalf("wrong current: %v", err)
		}
		in.CurrentPassword = "old-pass"
		in.ConfirmPassword = "other"
		ve := AsValidationError(func() error { _, err := svc.UpdateProfile(ctx, supervisor, in); return err }())
		if ve == nil || ve.Fields[0].Field != "confirmPassword" || ve.Fields[0].Message != "Значения не совпадают" {
			t.Fatalf("mismatch: %+v", ve)
		}
		in.ConfirmPassword = "new-pass"
		if _, err := svc.UpdateProfile(ctx, supervisor, in); err != nil {
			t.Fatalf("change: %v", err)
		}
		u, _ := repo.GetUser(ctx, db, supervisor.UserID)
		if !auth.CheckPassword(u.PasswordHash, "new-pass") {
			t.Fatal("password not changed")
		}
	})

	if _, err := svc.UpdateProfile(ctx, supervisor, ProfileInput{Action: "deleteEverything"}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("unknown action: %v", err)
	}
}

func TestAuthService_Login(t *testing.T) {
	db := newServiceDB(t)
	users := &UserService{DB: db, BcryptCost: testCost}
	ctx := context.Background()
	if _, err := users.Create(ctx, admin, CreateUserInput{Name: "Вход", Email: "login@example.com", Password: "secret1", Role: domain.RoleOCCManager}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mgr, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", JWTIssuer: "callqa", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	now := time.Now().UTC()
	svc := &AuthService{DB: db, Tokens: mgr, Now: func() time.Time { return now }}

	sess, err := svc.Login(ctx, LoginInput{Email: " LOGIN@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !sess.ExpiresAt.Equal(now.Add(time.Hour)) || sess.User.Email != "login@example.com" {
		t.Fatalf("session = %+v", sess)
	}
	claims, err := mgr.Verify(sess.Token, now)
	if err != nil || claims.Role != domain.RoleOCCManager || claims.Name != "Вход" {
		t.Fatalf("claims = %+v %v", claims, err)
	}

	for _, in := range []LoginInput{
		{Email: "login@example.com", Password: "wrong"},
		{Email: "ghost@example.com", Password: "secret1"},
	} {
		if _, err := svc.Login(ctx, in); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%+v: %v", in, err)
		}
	}
	if _, err := svc.Login(ctx, LoginInput{Email: "not-an-email"}); AsValidationError(err) == nil {
		t.Fatalf("validation: %v", err)
	}
}

func TestHealthService_Check(t *testing.T) {
	db := newServiceDB(t)
	seedCall(t, db, "c1", "x", nil)
	seedTemplate(t, db, "tpl", true, false, "A")
	seedReview(t, db, "r1", "c1", "tpl", domain.ReviewFailed, nil, t0)
	svc := &HealthService{DB: db, Version: "test", Location: time.UTC, Now: fixedAt}

	h := svc.Check(context.Background())
	if !h.Healthy() || h.Database != "connected" || h.Version != "test" {
		t.Fatalf("health = %+v", h)
	}
	if !h.DateParser.Working || !h.DateParser.TestOutput.Equal(time.Date(2025, 9, 16, 11, 13, 0, 0, time.UTC)) {
		t.Fatalf("date parser = %+v", h.DateParser)
	}
	if h.Reviews[domain.ReviewFailed] != 1 {
		t.Fatalf("reviews = %v", h.Reviews)
	}

	sqlDB, _ := db.DB()
	_ = sqlDB.Close()
	if h := svc.Check(context.Background()); h.Healthy() || h.Database != "disconnected" {
		t.Fatalf("closed db must be unhealthy: %+v", h)
	}
}
