// Package handlers exposes the REST endpoints of the call-quality-review API.
//
// Handlers are transport-thin: they bind input, resolve the session
// principal, call application services, and translate results and service
// errors into HTTP responses.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callqa-backend/internal/auth"
	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/http/middleware"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// CallService defines call record operations consumed by HTTP handlers.
type CallService interface {
	List(ctx context.Context, p *domain.Principal, q services.CallQuery) (*services.CallPage, error)
	// Stats returns the row count and last update of the visible calls (ETag).
	Stats(ctx context.Context, p *domain.Principal) (int64, *time.Time, error)
	Get(ctx context.Context, p *domain.Principal, id string) (*domain.CallRecord, error)
	Create(ctx context.Context, p *domain.Principal, in services.CreateCallInput) (*domain.CallRecord, error)
	IngestWebhook(ctx context.Context, body []byte, autoDispatch bool) (*domain.CallRecord, error)
	UpsertFromN8N(ctx context.Context, body []byte) (*domain.CallRecord, error)
	Delete(ctx context.Context, p *domain.Principal, id string) (*domain.CallRecord, int64, error)
	BulkDelete(ctx context.Context, p *domain.Principal, ids []string) (*services.BulkDeleteResult, error)
	ClearAll(ctx context.Context, p *domain.Principal, confirmation string) (*services.ClearAllResult, error)
}

// ReviewService defines review dispatch and removal.
type ReviewService interface {
	Dispatch(ctx context.Context, p *domain.Principal, callID string, in services.DispatchInput, idemKey string) (*services.DispatchResult, error)
	DispatchIncoming(ctx context.Context, in services.IncomingCallInput) (*services.IncomingResult, error)
	Delete(ctx context.Context, p *domain.Principal, callID, reviewID string) (*services.DeletedReview, error)
}

// ResultService defines analysis result ingestion.
type ResultService interface {
	IngestBatch(ctx context.Context, body []byte) (*services.BatchResult, error)
	IngestForReview(ctx context.Context, reviewID string, body []byte) (*domain.CallReview, error)
	CompleteIncoming(ctx context.Context, in services.CompletionInput) (*domain.CallReview, error)
}

// TemplateService defines checklist template management.
type TemplateService interface {
	List(ctx context.Context, p *domain.Principal, activeOnly bool) ([]domain.ChecklistTemplate, error)
	Get(ctx context.Context, p *domain.Principal, id string) (*domain.ChecklistTemplate, error)
	Create(ctx context.Context, p *domain.Principal, in services.TemplateInput) (*domain.ChecklistTemplate, error)
	Update(ctx context.Context, p *domain.Principal, id string, in services.TemplateInput) (*domain.ChecklistTemplate, error)
	Delete(ctx context.Context, p *domain.Principal, id string) error
	Toggle(ctx context.Context, p *domain.Principal, id string) (*domain.ChecklistTemplate, error)
	SetDefault(ctx context.Context, p *domain.Principal, id string) (*domain.ChecklistTemplate, error)
}

// UserService defines the admin user API and the caller's profile.
type UserService interface {
	List(ctx context.Context, p *domain.Principal) ([]services.UserView, error)
	Get(ctx context.Context, p *domain.Principal, id string) (*services.UserView, error)
	Create(ctx context.Context, p *domain.Principal, in services.CreateUserInput) (*domain.User, error)
	Update(ctx context.Context, p *domain.Principal, id string, in services.UpdateUserInput) (*domain.User, error)
	Delete(ctx context.Context, p *domain.Principal, id string) error
	Profile(ctx context.Context, p *domain.Principal) (*domain.User, error)
	UpdateProfile(ctx context.Context, p *domain.Principal, in services.ProfileInput) (*domain.User, error)
}

// AuthService exchanges credentials for a session token.
type AuthService interface {
	Login(ctx context.Context, in services.LoginInput) (*services.Session, error)
}

// HealthService reports liveness of the database and the date parser.
type HealthService interface {
	Check(ctx context.Context) *services.Health
}

//
// Handler wiring
//

// Services bundles the dependencies of Handlers. Nil members leave their
// endpoints unusable; the router only mounts what it wires.
type Services struct {
	Calls     CallService
	Reviews   ReviewService
	Results   ResultService
	Templates TemplateService
	Users     UserService
	Auth      AuthService
	Health    HealthService
}

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	callSvc     CallService
	reviewSvc   ReviewService
	resultSvc   ResultService
	templateSvc TemplateService
	userSvc     UserService
	authSvc     AuthService
	healthSvc   HealthService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(s Services) *Handlers {
	return &Handlers{
		callSvc:     s.Calls,
		reviewSvc:   s.Reviews,
		resultSvc:   s.Results,
		templateSvc: s.Templates,
		userSvc:     s.Users,
		authSvc:     s.Auth,
		healthSvc:   s.Health,
	}
}

// principal returns the session caller stored by auth.RequireSession, or nil.
func principal(c *gin.Context) *domain.Principal {
	if p, ok := auth.PrincipalFrom(c.Request.Context()); ok {
		return &p
	}
	return nil
}

// bindJSON decodes the body into dst. Syntax errors and type mismatches are
// answered with 400 and false is returned.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		failWithDetails(c, http.StatusBadRequest, ErrCodeValidation, msgInvalidData,
			[]services.FieldError{{Field: typeErr.Field, Message: "Неверный тип значения"}})
		return false
	}
	fail(c, http.StatusBadRequest, ErrCodeInvalidJSON, msgInvalidJSON)
	return false
}

// failService maps a service error onto the error envelope. Errors whose
// wording depends on the endpoint are handled by the caller first.
func failService(c *gin.Context, err error) {
	failServiceWith(c, err, msgValidation)
}

// failServiceWith is failService with a custom message for validation
// failures.
func failServiceWith(c *gin.Context, err error, validationMsg string) {
	if ve := services.AsValidationError(err); ve != nil {
		failWithDetails(c, http.StatusBadRequest, ErrCodeValidation, validationMsg, ve.Fields)
		return
	}

	var inUse *services.TemplateInUseError
	switch {
	case errors.Is(err, rbac.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, msgUnauthorized)
	case errors.Is(err, rbac.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, msgForbidden)
	case errors.Is(err, services.ErrInvalidJSON):
		fail(c, http.StatusBadRequest, ErrCodeInvalidJSON, msgInvalidJSON)

	case errors.Is(err, services.ErrCallNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgCallNotFound)
	case errors.Is(err, services.ErrDuplicateCall):
		fail(c, http.StatusConflict, ErrCodeConflict, msgDuplicateCall)
	case errors.Is(err, services.ErrNoCallsFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Ни один из указанных звонков не найден")
	case errors.Is(err, services.ErrConfirmationRequired):
		failWithDetails(c, http.StatusBadRequest, ErrCodeConfirmation, "Требуется подтверждение",
			gin.H{"hint": "Передайте confirmation: " + services.ClearAllConfirmation})

	case errors.As(err, &inUse):
		failWithDetails(c, http.StatusConflict, ErrCodeTemplateInUse,
			"Нельзя удалить чек-лист, который используется в проверках",
			"Этот чек-лист используется в "+itoa64(inUse.Reviews)+" проверках")
	case errors.Is(err, services.ErrTemplateNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgTemplateNF)
	case errors.Is(err, services.ErrTemplateInactive):
		fail(c, http.StatusBadRequest, ErrCodeTemplateInactive, "Чек-лист неактивен")
	case errors.Is(err, services.ErrNoActiveTemplate):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Нет активных чек-листов")
	case errors.Is(err, services.ErrNoDefaultTemplate):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Не найден активный дефолтный чек-лист")

	case errors.Is(err, services.ErrReviewNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgReviewNF)
	case errors.Is(err, services.ErrReviewCallMismatch):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Проверка не относится к указанному звонку")

	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, msgUserNotFound)
	case errors.Is(err, services.ErrDuplicateEmail):
		fail(c, http.StatusConflict, ErrCodeConflict, "Пользователь с таким email уже существует")
	case errors.Is(err, services.ErrOwnRoleChange):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Нельзя изменить собственную роль")
	case errors.Is(err, services.ErrSelfDelete):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Нельзя удалить собственный аккаунт")
	case errors.Is(err, services.ErrUserHasDependents):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Нельзя удалить пользователя с существующими данными")
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "Неверный email или пароль")
	case errors.Is(err, services.ErrWrongPassword):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Неверный текущий пароль")
	case errors.Is(err, services.ErrUnknownAction):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "Неизвестное действие")

	default:
		// Details stay in the log; clients get the generic message.
		lg := middleware.LoggerFrom(c)
		lg.Error().Err(err).Str("path", c.FullPath()).Msg("unhandled service error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, msgInternal)
	}
}

func itoa64(n int64) string { return strconv.FormatInt(n, 10) }
