package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/services"
)

func TestChecklistEndpoints(t *testing.T) {
	var activeOnly bool
	tpls := stubTemplates{
		list: func(_ context.Context, p *domain.Principal, active bool) ([]domain.ChecklistTemplate, error) {
			if p.Role == domain.RoleSupervisor {
				return nil, rbac.ErrForbidden
			}
			activeOnly = active
			return []domain.ChecklistTemplate{{ID: "a"}}, nil
		},
		toggle: func(_ context.Context, _ *domain.Principal, id string) (*domain.ChecklistTemplate, error) {
			return &domain.ChecklistTemplate{ID: id, Title: "Входящие", IsActive: id == "on"}, nil
		},
		del: func(_ context.Context, _ *domain.Principal, id string) error {
			if id == "used" {
				return &services.TemplateInUseError{Reviews: 2}
			}
			return nil
		},
		setDef: func(_ context.Context, _ *domain.Principal, id string) (*domain.ChecklistTemplate, error) {
			if id == "" {
				return nil, &services.ValidationError{Fields: []services.FieldError{{Field: "checklistId", Message: "Не указан ID чек-листа"}}}
			}
			return &domain.ChecklistTemplate{ID: id, IsDefault: true, IsActive: true}, nil
		},
	}
	h := New(Services{Templates: tpls})
	r := newTestEngine(mgrP)
	r.GET("/checklists", h.ListChecklists)
	r.POST("/checklists", h.CreateChecklist)
	r.GET("/checklists/:id", h.GetChecklist)
	r.DELETE("/checklists/:id", h.DeleteChecklist)
	r.PATCH("/checklists/:id/toggle", h.ToggleChecklist)
	r.PATCH("/checklists/set-default", h.SetDefaultChecklist)

	w := doJSON(r, http.MethodGet, "/checklists?active=true", "")
	var list []domain.ChecklistTemplate
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || len(list) != 1 || !activeOnly {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodPost, "/checklists", `{"name":"Новый","items":[{"text":"a"}]}`)
	if m := decodeMap(t, w); w.Code != http.StatusCreated || m["createdById"] != mgrP.UserID {
		t.Fatalf("create: %d %v", w.Code, m)
	}
	if w := doJSON(r, http.MethodGet, "/checklists/x", ""); w.Code != http.StatusNotFound {
		t.Fatalf("get unknown: %d", w.Code)
	}

	w = doJSON(r, http.MethodPatch, "/checklists/on/toggle", "")
	if m := decodeMap(t, w); m["message"] != `Чек-лист "Входящие" активирован` {
		t.Fatalf("toggle on: %v", m)
	}
	w = doJSON(r, http.MethodPatch, "/checklists/off/toggle", "")
	if m := decodeMap(t, w); m["message"] != `Чек-лист "Входящие" деактивирован` {
		t.Fatalf("toggle off: %v", m)
	}

	w = doJSON(r, http.MethodDelete, "/checklists/used", "")
	if er := decodeErr(t, w); w.Code != http.StatusConflict || er.Message != "Нельзя удалить чек-лист, который используется в проверках" {
		t.Fatalf("delete used: %d %+v", w.Code, er)
	}
	w = doJSON(r, http.MethodDelete, "/checklists/free", "")
	if m := decodeMap(t, w); w.Code != http.StatusOK || m["message"] != "Чек-лист успешно удален" {
		t.Fatalf("delete: %d %v", w.Code, m)
	}

	w = doJSON(r, http.MethodPatch, "/checklists/set-default", `{"checklistId":"b"}`)
	if m := decodeMap(t, w); w.Code != http.StatusOK || m["message"] != "Дефолтный чек-лист установлен" {
		t.Fatalf("set default: %d %v", w.Code, m)
	}
	if w := doJSON(r, http.MethodPatch, "/checklists/set-default", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("set default without id: %d", w.Code)
	}

	sup := newTestEngine(&domain.Principal{UserID: "u-sup", Role: domain.RoleSupervisor})
	sup.GET("/checklists", h.ListChecklists)
	if w := doJSON(sup, http.MethodGet, "/checklists", ""); w.Code != http.StatusForbidden {
		t.Fatalf("supervisor: %d", w.Code)
	}
}

func TestUserEndpoints(t *testing.T) {
	users := stubUsers{
		update: func(_ context.Context, p *domain.Principal, id string, in services.UpdateUserInput) (*domain.User, error) {
			if id == p.UserID && in.Role != nil {
				return nil, services.ErrOwnRoleChange
			}
			return &domain.User{ID: id, Name: *in.Name}, nil
		},
		del: func(_ context.Context, p *domain.Principal, id string) error {
			if id == p.UserID {
				return services.ErrSelfDelete
			}
			return nil
		},
	}
	h := New(Services{Users: users})
	r := newTestEngine(adminP)
	r.GET("/admin/users", h.ListUsers)
	r.POST("/admin/users", h.CreateUser)
	r.GET("/admin/users/:id", h.GetUser)
	r.PUT("/admin/users/:id", h.UpdateUser)
	r.DELETE("/admin/users/:id", h.DeleteUser)

	w := doJSON(r, http.MethodGet, "/admin/users", "")
	var list []map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || len(list) != 1 || list[0]["_count"].(map[string]any)["requestedReviews"].(float64) != 2 {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	if _, leaked := list[0]["passwordHash"]; leaked {
		t.Fatal("password hash must not be serialized")
	}

	w = doJSON(r, http.MethodPost, "/admin/users", `{"name":"Ольга","email":"o@example.com","password":"secret1","role":"SUPERVISOR"}`)
	if m := decodeMap(t, w); w.Code != http.StatusCreated || m["role"] != "SUPERVISOR" {
		t.Fatalf("create: %d %v", w.Code, m)
	}
	if w := doJSON(r, http.MethodGet, "/admin/users/ghost", ""); w.Code != http.StatusNotFound {
		t.Fatalf("get unknown: %d", w.Code)
	}

	w = doJSON(r, http.MethodPut, "/admin/users/u-admin", `{"role":"SUPERVISOR"}`)
	if er := decodeErr(t, w); w.Code != http.StatusBadRequest || er.Message != "Нельзя изменить собственную роль" {
		t.Fatalf("own role: %d %+v", w.Code, er)
	}
	w = doJSON(r, http.MethodPut, "/admin/users/u2", `{"name":"Пётр"}`)
	if m := decodeMap(t, w); w.Code != http.StatusOK || m["name"] != "Пётр" {
		t.Fatalf("update: %d %v", w.Code, m)
	}

	w = doJSON(r, http.MethodDelete, "/admin/users/u-admin", "")
	if er := decodeErr(t, w); w.Code != http.StatusBadRequest || er.Message != "Нельзя удалить собственный аккаунт" {
		t.Fatalf("self delete: %d %+v", w.Code, er)
	}
	w = doJSON(r, http.MethodDelete, "/admin/users/u2", "")
	if m := decodeMap(t, w); w.Code != http.StatusOK || m["message"] != "Пользователь успешно удален" {
		t.Fatalf("delete: %d %v", w.Code, m)
	}
}

func TestProfileEndpoints(t *testing.T) {
	users := stubUsers{
		updateProfile: func(_ context.Context, p *domain.Principal, in services.ProfileInput) (*domain.User, error) {
			switch in.Action {
			case services.ActionChangePassword:
				if in.CurrentPassword != "old" {
					return nil, services.ErrWrongPassword
				}
				return nil, nil
			case services.ActionUpdateProfile:
				if in.Email == "taken@example.com" {
					return nil, services.ErrDuplicateEmail
				}
				return &domain.User{ID: p.UserID, Name: in.Name, Email: in.Email}, nil
			}
			return nil, services.ErrUnknownAction
		},
	}
	h := New(Services{Users: users})
	r := newTestEngine(mgrP)
	r.GET("/profile", h.GetProfile)
	r.PUT("/profile", h.UpdateProfile)

	if w := doJSON(r, http.MethodGet, "/profile", ""); w.Code != http.StatusOK || decodeMap(t, w)["id"] != mgrP.UserID {
		t.Fatalf("profile: %d %s", w.Code, w.Body.String())
	}

	tests := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"update", `{"action":"updateProfile","name":"М","email":"m@example.com"}`, http.StatusOK, "Профиль успешно обновлен"},
		{"email taken", `{"action":"updateProfile","name":"М","email":"taken@example.com"}`, http.StatusConflict, "Email уже используется другим пользователем"},
		{"password", `{"action":"changePassword","currentPassword":"old","newPassword":"new-pass","confirmPassword":"new-pass"}`, http.StatusOK, "Пароль успешно изменен"},
		{"wrong password", `{"action":"changePassword","currentPassword":"bad"}`, http.StatusBadRequest, "Неверный текущий пароль"},
		{"unknown action", `{"action":"nuke"}`, http.StatusBadRequest, "Неизвестное действие"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPut, "/profile", tc.body)
			m := decodeMap(t, w)
			if w.Code != tc.status || m["message"] != tc.msg {
				t.Fatalf("%d %v", w.Code, m)
			}
			if tc.name == "password" {
				if _, has := m["user"]; has {
					t.Fatal("password change must not echo the user")
				}
			}
		})
	}

	anon := newTestEngine(nil)
	anon.GET("/profile", h.GetProfile)
	if w := doJSON(anon, http.MethodGet, "/profile", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", w.Code)
	}
}

func TestLoginAndHealth(t *testing.T) {
	exp := time.Date(2025, 9, 17, 8, 0, 0, 0, time.UTC)
	authSvc := stubAuth{
		login: func(_ context.Context, in services.LoginInput) (*services.Session, error) {
			if in.Password != "secret1" {
				return nil, services.ErrInvalidCredentials
			}
			return &services.Session{Token: "tok", ExpiresAt: exp, User: domain.User{ID: "u1", Email: in.Email}}, nil
		},
	}
	healthy := &services.Health{Status: "healthy", Database: "connected"}
	hs := &stubHealth{h: healthy}
	h := New(Services{Auth: authSvc, Health: hs})
	r := newTestEngine(nil)
	r.POST("/auth/login", h.Login)
	r.GET("/health", h.Health)

	w := doJSON(r, http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"secret1"}`)
	var sess services.Session
	_ = json.Unmarshal(w.Body.Bytes(), &sess)
	if w.Code != http.StatusOK || sess.Token != "tok" || !sess.ExpiresAt.Equal(exp) {
		t.Fatalf("login: %d %s", w.Code, w.Body.String())
	}
	w = doJSON(r, http.MethodPost, "/auth/login", `{"email":"a@example.com","password":"nope"}`)
	if er := decodeErr(t, w); w.Code != http.StatusUnauthorized || er.Message != "Неверный email или пароль" {
		t.Fatalf("bad login: %d %+v", w.Code, er)
	}

	if w := doJSON(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK || decodeMap(t, w)["database"] != "connected" {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
	hs.h = &services.Health{Status: "unhealthy", Database: "disconnected", Error: "Database connection failed"}
	if w := doJSON(r, http.MethodGet, "/health", ""); w.Code != http.StatusInternalServerError || decodeMap(t, w)["status"] != "unhealthy" {
		t.Fatalf("unhealthy: %d %s", w.Code, w.Body.String())
	}
}
