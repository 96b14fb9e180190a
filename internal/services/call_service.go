// Package services – CallService
//
// This file implements CallService, which owns the CallRecord lifecycle:
// role-scoped listing, lookup, the three ingestion paths (manual create,
// camelCase webhook, snake_case n8n webhook) and the deletion operations.
//
// Row-level visibility: callers without the view-all permission only see
// calls whose employee name equals their own display name.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/events"
	"github.com/tbourn/callqa-backend/internal/observability"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/repo"
	"github.com/tbourn/callqa-backend/internal/utils"
)

// ClearAllConfirmation must be echoed back to wipe every call.
const ClearAllConfirmation = "DELETE_ALL_CALLS"

// MaxBulkDelete caps the ids accepted by one bulk deletion.
const MaxBulkDelete = 100

// AutoDispatcher starts an automatic review for a freshly ingested call.
type AutoDispatcher interface {
	AutoDispatch(ctx context.Context, callID string) (*DispatchResult, error)
}

// CallService manages call records.
type CallService struct {
	DB *gorm.DB
	// Dispatcher runs the automatic review after webhook ingestion. Nil
	// disables auto dispatch.
	Dispatcher AutoDispatcher
	Events     events.Publisher
	// Location interprets zone-less dates. Nil means time.Local.
	Location *time.Location
	Now      Clock
}

// CallQuery holds the listing parameters. Defaults are applied through the
// form tags when bound from a query string.
type CallQuery struct {
	Search    string `form:"search"                      json:"search"`
	DateFrom  string `form:"dateFrom"                    json:"dateFrom"`
	DateTo    string `form:"dateTo"                      json:"dateTo"`
	Page      int    `form:"page,default=1"              json:"page"      validate:"min=1"`
	Limit     int    `form:"limit,default=20"            json:"limit"     validate:"min=1,max=100"`
	SortBy    string `form:"sortBy,default=createdAt"    json:"sortBy"    validate:"oneof=createdAt dealId employeeName"`
	SortOrder string `form:"sortOrder,default=desc"      json:"sortOrder" validate:"oneof=asc desc"`
}

// CallPage is one page of a listing.
type CallPage struct {
	Calls []domain.CallRecord
	Total int64
	Page  int
	Limit int
}

// List returns the calls visible to p that match q.
func (s *CallService) List(ctx context.Context, p *domain.Principal, q CallQuery) (*CallPage, error) {
	ctx, span := observability.StartSpan(ctx, "CallService.List",
		attribute.Int("page", q.Page),
		attribute.Int("limit", q.Limit),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	caller, err := requireSession(p)
	if err != nil {
		return nil, err
	}
	if err = validateStruct(q); err != nil {
		return nil, err
	}

	f := repo.CallFilter{
		EmployeeName: rbac.CallScope(caller),
		Search:       strings.TrimSpace(q.Search),
		SortBy:       q.SortBy,
		SortDesc:     q.SortOrder == "desc",
		Offset:       (q.Page - 1) * q.Limit,
		Limit:        q.Limit,
	}
	if q.DateFrom != "" {
		from, ok := utils.ParseRussianDate(q.DateFrom, s.Location)
		if !ok {
			err = invalid("dateFrom", "Неверный формат даты")
			return nil, err
		}
		f.From = &from
	}
	if q.DateTo != "" {
		to, ok := utils.ParseRussianDate(q.DateTo, s.Location)
		if !ok {
			err = invalid("dateTo", "Неверный формат даты")
			return nil, err
		}
		// The upper bound covers the whole given day.
		to = to.AddDate(0, 0, 1)
		f.To = &to
	}

	calls, total, err := repo.ListCalls(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	return &CallPage{Calls: calls, Total: total, Page: q.Page, Limit: q.Limit}, nil
}

// Stats returns the row count and last modification time of the calls
// visible to p, for conditional listing responses.
func (s *CallService) Stats(ctx context.Context, p *domain.Principal) (int64, *time.Time, error) {
	caller, err := requireSession(p)
	if err != nil {
		return 0, nil, err
	}
	return repo.CallsStats(ctx, s.DB, rbac.CallScope(caller))
}

// Get returns one call with its reviews.
func (s *CallService) Get(ctx context.Context, p *domain.Principal, id string) (*domain.CallRecord, error) {
	ctx, span := observability.StartSpan(ctx, "CallService.Get", attribute.String("call.id", id))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	caller, err := requireSession(p)
	if err != nil {
		return nil, err
	}
	c, err := repo.GetCall(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrCallNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !rbac.CanViewCall(caller.Role, caller.Name, c.EmployeeName) {
		err = rbac.ErrForbidden
		return nil, err
	}
	return c, nil
}

// CreateCallInput is a manually entered call.
type CreateCallInput struct {
	ID           FlexString      `json:"id"           validate:"required"`
	DealID       FlexString      `json:"dealId"       validate:"required"`
	CreatedAt    string          `json:"createdAt"    validate:"required"`
	EmployeeName string          `json:"employeeName" validate:"required"`
	ManagerName  string          `json:"managerName"  validate:"required"`
	InitiatedBy  *string         `json:"initiatedBy"`
	CallText     *string         `json:"callText"`
	Payload      json.RawMessage `json:"payload"`
}

// Create stores a manually entered call. Unlike webhook ingestion the call
// date is mandatory and must parse.
func (s *CallService) Create(ctx context.Context, p *domain.Principal, in CreateCallInput) (*domain.CallRecord, error) {
	if _, err := requireSession(p); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	at, ok := utils.ParseRussianDate(in.CreatedAt, s.Location)
	if !ok {
		return nil, invalid("createdAt", "Неверный формат даты")
	}
	payload := datatypes.JSON(in.Payload)
	if len(payload) == 0 || string(payload) == "null" {
		payload = datatypes.JSON("{}")
	}
	c := &domain.CallRecord{
		ID:           in.ID.String(),
		DealID:       in.DealID.String(),
		CreatedAt:    at,
		EmployeeName: in.EmployeeName,
		ManagerName:  in.ManagerName,
		InitiatedBy:  nonEmpty(in.InitiatedBy),
		CallText:     nonEmpty(in.CallText),
		Payload:      payload,
	}
	return s.insert(ctx, c)
}

func (s *CallService) insert(ctx context.Context, c *domain.CallRecord) (*domain.CallRecord, error) {
	if err := repo.CreateCall(ctx, s.DB, c); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrDuplicateCall
		}
		return nil, err
	}
	publish(ctx, s.Events, events.Event{Type: events.TypeCallIngested, CallID: c.ID, OccurredAt: s.Now.now()})
	c.Reviews = []domain.CallReview{}
	return c, nil
}

// webhookKnownFields are the camelCase keys mapped to columns; everything
// else in a webhook body lands in the payload.
var webhookKnownFields = []string{"id", "dealId", "createdAt", "employeeName", "managerName", "initiatedBy", "callText"}

// IngestWebhook creates a call from a camelCase webhook body. When
// autoDispatch is set an automatic review is started; its failure is logged
// and never fails ingestion.
func (s *CallService) IngestWebhook(ctx context.Context, body []byte, autoDispatch bool) (*domain.CallRecord, error) {
	ctx, span := observability.StartSpan(ctx, "CallService.IngestWebhook", attribute.Bool("auto_dispatch", autoDispatch))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var fields map[string]json.RawMessage
	if err = json.Unmarshal(body, &fields); err != nil || fields == nil {
		err = invalid("body", "Неверный формат данных JSON")
		return nil, err
	}

	str := func(key string) string {
		raw, ok := fields[key]
		if !ok {
			return ""
		}
		var v FlexString
		if json.Unmarshal(raw, &v) != nil {
			return ""
		}
		return strings.TrimSpace(v.String())
	}

	var missing []FieldError
	for _, k := range []string{"id", "dealId", "employeeName", "managerName"} {
		if str(k) == "" {
			missing = append(missing, FieldError{Field: k, Message: "Обязательное поле"})
		}
	}
	if len(missing) > 0 {
		err = &ValidationError{Fields: missing}
		return nil, err
	}

	at := s.callTime(str("createdAt"), str("id"))

	extra := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		extra[k] = v
	}
	for _, k := range webhookKnownFields {
		delete(extra, k)
	}
	payload, _ := json.Marshal(extra)

	c := &domain.CallRecord{
		ID:           str("id"),
		DealID:       str("dealId"),
		CreatedAt:    at,
		EmployeeName: str("employeeName"),
		ManagerName:  str("managerName"),
		InitiatedBy:  optString(str("initiatedBy")),
		CallText:     optString(str("callText")),
		Payload:      datatypes.JSON(payload),
	}
	created, err := s.insert(ctx, c)
	if err != nil {
		return nil, err
	}

	if !autoDispatch || s.Dispatcher == nil {
		return created, nil
	}
	if _, derr := s.Dispatcher.AutoDispatch(ctx, created.ID); derr != nil {
		log.Warn().Err(derr).Str("call_id", created.ID).Msg("auto dispatch skipped")
		return created, nil
	}
	if reloaded, gerr := repo.GetCall(ctx, s.DB, created.ID); gerr == nil {
		return reloaded, nil
	}
	return created, nil
}

// N8NCallInput is the snake_case body of the n8n call webhook.
type N8NCallInput struct {
	ID          string  `json:"id"           validate:"required"`
	DealID      string  `json:"deal_id"      validate:"required"`
	CreatedAt   *string `json:"created_at"`
	Employee    string  `json:"employe"      validate:"required"`
	Manager     string  `json:"employe_rug"  validate:"required"`
	InitiatedBy *string `json:"initiated_by"`
	CallText    *string `json:"call_text"`
}

// UpsertFromN8N inserts or overwrites a call from the n8n webhook. The whole
// body is kept as payload.
func (s *CallService) UpsertFromN8N(ctx context.Context, body []byte) (*domain.CallRecord, error) {
	ctx, span := observability.StartSpan(ctx, "CallService.UpsertFromN8N")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	var in N8NCallInput
	if err = json.Unmarshal(body, &in); err != nil {
		err = invalid("body", "Неверный формат данных")
		return nil, err
	}
	if err = validateStruct(in); err != nil {
		return nil, err
	}

	at := s.Now.now()
	if in.CreatedAt != nil && *in.CreatedAt != "" {
		at = s.callTime(*in.CreatedAt, in.ID)
	}

	c := &domain.CallRecord{
		ID:           in.ID,
		DealID:       in.DealID,
		CreatedAt:    at,
		UpdatedAt:    s.Now.now(),
		EmployeeName: in.Employee,
		ManagerName:  in.Manager,
		InitiatedBy:  in.InitiatedBy,
		CallText:     in.CallText,
		Payload:      datatypes.JSON(body),
	}
	if err = repo.UpsertCall(ctx, s.DB, c, true); err != nil {
		return nil, err
	}
	publish(ctx, s.Events, events.Event{Type: events.TypeCallIngested, CallID: c.ID, OccurredAt: s.Now.now()})
	return c, nil
}

// callTime parses a webhook call date and falls back to now.
func (s *CallService) callTime(raw, callID string) time.Time {
	if raw == "" {
		return s.Now.now()
	}
	if at, ok := utils.ParseRussianDate(raw, s.Location); ok {
		return at
	}
	log.Warn().Str("call_id", callID).Str("created_at", raw).Msg("unparseable call date, using current time")
	return s.Now.now()
}

// Delete removes a call and its reviews. It returns the deleted call and
// the number of deleted reviews.
func (s *CallService) Delete(ctx context.Context, p *domain.Principal, id string) (*domain.CallRecord, int64, error) {
	ctx, span := observability.StartSpan(ctx, "CallService.Delete", attribute.String("call.id", id))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.DeleteCalls); err != nil {
		return nil, 0, err
	}

	var (
		call    *domain.CallRecord
		reviews int64
	)
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ferr error
		call, ferr = repo.GetCall(ctx, tx, id)
		if errors.Is(ferr, repo.ErrNotFound) {
			return ErrCallNotFound
		}
		if ferr != nil {
			return ferr
		}
		_, reviews, ferr = repo.DeleteCalls(ctx, tx, []string{id})
		return ferr
	})
	if err != nil {
		return nil, 0, err
	}
	call.Reviews = nil
	return call, reviews, nil
}

// BulkDeleteResult summarizes a bulk deletion.
type BulkDeleteResult struct {
	DeletedCalls   int64
	DeletedReviews int64
	NotFoundIDs    []string
}

// BulkDelete removes up to MaxBulkDelete calls. Unknown ids are reported,
// not rejected, unless none of the ids exist.
func (s *CallService) BulkDelete(ctx context.Context, p *domain.Principal, ids []string) (*BulkDeleteResult, error) {
	ctx, span := observability.StartSpan(ctx, "CallService.BulkDelete", attribute.Int("ids", len(ids)))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.DeleteCalls); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		err = invalid("callIds", "Необходимо указать массив ID звонков")
		return nil, err
	}
	if len(ids) > MaxBulkDelete {
		err = invalid("callIds", "За раз можно удалить максимум 100 звонков")
		return nil, err
	}

	res := &BulkDeleteResult{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, ferr := repo.FindExistingCallIDs(ctx, tx, ids)
		if ferr != nil {
			return ferr
		}
		if len(existing) == 0 {
			return ErrNoCallsFound
		}
		found := make(map[string]struct{}, len(existing))
		for _, id := range existing {
			found[id] = struct{}{}
		}
		for _, id := range ids {
			if _, ok := found[id]; !ok {
				res.NotFoundIDs = append(res.NotFoundIDs, id)
			}
		}
		res.DeletedCalls, res.DeletedReviews, ferr = repo.DeleteCalls(ctx, tx, existing)
		return ferr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ClearAllResult summarizes a full wipe.
type ClearAllResult struct {
	DeletedCalls   int64
	DeletedReviews int64
	ClearedBy      string
	Timestamp      time.Time
	// AlreadyEmpty is set when there was nothing to delete.
	AlreadyEmpty bool
}

// ClearAll deletes every call and review. Only administrators may do it, and
// only with the exact confirmation phrase.
func (s *CallService) ClearAll(ctx context.Context, p *domain.Principal, confirmation string) (*ClearAllResult, error) {
	ctx, span := observability.StartSpan(ctx, "CallService.ClearAll")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.DeleteCalls); err != nil {
		return nil, err
	}
	if p.Role != domain.RoleAdministrator {
		err = rbac.ErrForbidden
		return nil, err
	}
	if confirmation != ClearAllConfirmation {
		err = ErrConfirmationRequired
		return nil, err
	}

	res := &ClearAllResult{ClearedBy: p.Name, Timestamp: s.Now.now()}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, cerr := repo.CountCalls(ctx, tx)
		if cerr != nil {
			return cerr
		}
		if n == 0 {
			res.AlreadyEmpty = true
			return nil
		}
		res.DeletedCalls, res.DeletedReviews, cerr = repo.DeleteAllCalls(ctx, tx)
		return cerr
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("user_id", p.UserID).
		Int64("calls", res.DeletedCalls).
		Int64("reviews", res.DeletedReviews).
		Msg("all calls cleared")
	return res, nil
}

// nonEmpty maps empty strings to nil.
func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}
