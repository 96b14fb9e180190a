// Package services – ReviewService
//
// This file implements the review dispatch workflow. A dispatch creates a
// PENDING review, posts the call transcript and the template items to the
// n8n analysis webhook, and records the synchronous answer on the review:
//
//	PENDING ──2xx──────────────▶ SUCCESS
//	   │
//	   ├──non-2xx──────────────▶ FAILED (status, headers and body kept)
//	   └──transport error──────▶ FAILED ({error, timestamp} kept)
//
// A review never stays PENDING after its dispatch returns. Nothing is
// retried; dispatching again creates another review.
//
// Three flavors exist: manual (a user picks the template), automatic (after
// webhook ingestion, default or oldest active template) and incoming (the
// inbound-call pipeline, default template only, followed by a notification).
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/events"
	"github.com/tbourn/callqa-backend/internal/n8n"
	"github.com/tbourn/callqa-backend/internal/observability"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/repo"
	"github.com/tbourn/callqa-backend/internal/utils"
)

// Review comments stored on system-initiated reviews.
const (
	commentAutoReview     = "Автоматическая проверка при создании звонка"
	commentIncomingReview = "Автоматическая проверка входящего звонка"
)

// Defaults for calls first seen through the inbound-call pipeline.
const (
	incomingDealID       = "UNKNOWN"
	incomingEmployeeName = "Тест Сотрудник"
	incomingManagerName  = "Тест Менеджер"
)

// DispatchOutcome classifies how the analysis webhook answered.
type DispatchOutcome int

const (
	// OutcomeDelivered means a 2xx answer.
	OutcomeDelivered DispatchOutcome = iota
	// OutcomeRejected means a non-2xx answer.
	OutcomeRejected
	// OutcomeUnreachable means no answer at all.
	OutcomeUnreachable
)

// statusCode is the HTTP status a manual dispatch answers with; it is also
// what idempotency records keep.
func (o DispatchOutcome) statusCode() int {
	switch o {
	case OutcomeRejected:
		return 422
	case OutcomeUnreachable:
		return 500
	}
	return 200
}

func outcomeFromStatus(code int) DispatchOutcome {
	switch code {
	case 422:
		return OutcomeRejected
	case 500:
		return OutcomeUnreachable
	}
	return OutcomeDelivered
}

// DispatchResult is the finalized review plus what the webhook said.
type DispatchResult struct {
	Review  *domain.CallReview
	Outcome DispatchOutcome
	// Status and StatusText of the answer; zero when unreachable.
	Status     int
	StatusText string
	// Body is the parsed answer body; nil when unreachable.
	Body json.RawMessage
	// Err is the transport error when unreachable.
	Err error
	// Replayed is set when an Idempotency-Key matched an earlier dispatch.
	Replayed bool
}

// ReviewService dispatches and deletes reviews.
type ReviewService struct {
	DB     *gorm.DB
	Client *n8n.Client
	// ManualURL receives manual dispatches, AutoURL automatic and incoming ones.
	ManualURL string
	AutoURL   string
	Notifier  *n8n.Notifier
	Events    events.Publisher
	// IdempotencyTTL bounds how long a manual dispatch can be replayed.
	IdempotencyTTL time.Duration
	Location       *time.Location
	Now            Clock
}

// DispatchInput selects the template of a manual dispatch.
type DispatchInput struct {
	TemplateID  string  `json:"templateId"  validate:"required"`
	CommentText *string `json:"commentText"`
}

// Dispatch sends call callID for analysis with the template chosen by p.
// When idemKey matches an earlier dispatch of the same caller and call, the
// earlier review is returned instead and nothing is sent.
//
// An answered or failed dispatch is not an error: inspect the Outcome.
func (s *ReviewService) Dispatch(ctx context.Context, p *domain.Principal, callID string, in DispatchInput, idemKey string) (*DispatchResult, error) {
	ctx, span := observability.StartSpan(ctx, "ReviewService.Dispatch",
		attribute.String("call.id", callID),
		attribute.String("template.id", in.TemplateID),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = rbac.Check(p, rbac.SendToAnalysis); err != nil {
		return nil, err
	}
	if err = validateStruct(in); err != nil {
		return nil, err
	}

	if idemKey != "" {
		if res := s.replay(ctx, p.UserID, callID, idemKey); res != nil {
			return res, nil
		}
	}

	call, err := repo.GetCall(ctx, s.DB, callID)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrCallNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !rbac.CanViewCall(p.Role, p.Name, call.EmployeeName) {
		err = rbac.ErrForbidden
		return nil, err
	}

	tpl, err := repo.GetTemplate(ctx, s.DB, in.TemplateID)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrTemplateNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		err = ErrTemplateInactive
		return nil, err
	}

	// Sessions outlive deleted users; such dispatches are stored without a
	// requester.
	var requester *string
	if _, uerr := repo.GetUser(ctx, s.DB, p.UserID); uerr == nil {
		id := p.UserID
		requester = &id
	} else {
		log.Warn().Str("user_id", p.UserID).Msg("requester not found, storing review without requester")
	}

	comment := nonEmpty(in.CommentText)
	fallback := ""
	if comment != nil {
		fallback = *comment
	}

	res, err := s.run(ctx, dispatchJob{
		kind:      "manual",
		url:       s.ManualURL,
		userAgent: n8n.UserAgentManual,
		call:      call,
		template:  tpl,
		requester: requester,
		comment:   comment,
		fallback:  fallback,
	})
	if err != nil {
		return nil, err
	}

	if idemKey != "" {
		if _, ierr := repo.CreateIdempotency(ctx, s.DB, p.UserID, callID, idemKey, res.Review.ID, res.Outcome.statusCode(), s.idempotencyTTL()); ierr != nil && !errors.Is(ierr, repo.ErrDuplicate) {
			log.Warn().Err(ierr).Str("review_id", res.Review.ID).Msg("store idempotency record failed")
		}
	}
	return res, nil
}

func (s *ReviewService) idempotencyTTL() time.Duration {
	if s.IdempotencyTTL > 0 {
		return s.IdempotencyTTL
	}
	return 24 * time.Hour
}

// replay returns the earlier result recorded for key, or nil.
func (s *ReviewService) replay(ctx context.Context, userID, callID, key string) *DispatchResult {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, callID, key, s.Now.now())
	if err != nil || rec == nil {
		return nil
	}
	rv, err := repo.GetReview(ctx, s.DB, rec.ReviewID)
	if err != nil {
		return nil
	}
	res := &DispatchResult{Review: rv, Outcome: outcomeFromStatus(rec.Status), Replayed: true}
	var d n8n.Diagnostic
	if len(rv.N8nResponse) > 0 && json.Unmarshal(rv.N8nResponse, &d) == nil {
		res.Status, res.StatusText, res.Body = d.Status, d.StatusText, d.Body
	}
	return res
}

// AutoDispatch reviews callID with the default active template, or the
// oldest active one when no default exists.
func (s *ReviewService) AutoDispatch(ctx context.Context, callID string) (*DispatchResult, error) {
	ctx, span := observability.StartSpan(ctx, "ReviewService.AutoDispatch", attribute.String("call.id", callID))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	call, err := repo.GetCall(ctx, s.DB, callID)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrCallNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	tpl, err := repo.FindAutoTemplate(ctx, s.DB)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrNoActiveTemplate
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !tpl.IsDefault {
		log.Warn().Str("template_id", tpl.ID).Msg("no default template, falling back to oldest active")
	}

	comment := commentAutoReview
	return s.run(ctx, dispatchJob{
		kind:      "auto",
		url:       s.AutoURL,
		userAgent: n8n.UserAgentAuto,
		call:      call,
		template:  tpl,
		comment:   &comment,
		numbered:  true,
	})
}

// IncomingCallInput is the body of the inbound-call pipeline.
type IncomingCallInput struct {
	CallID        FlexString      `json:"call_id"`
	PhoneNumber   *FlexString     `json:"phone_number"`
	Duration      *float64        `json:"duration"`
	Transcription *string         `json:"transcription"`
	Timestamp     json.RawMessage `json:"timestamp"`
}

// IncomingResult is the call and review produced by DispatchIncoming.
type IncomingResult struct {
	Call   *domain.CallRecord
	Review *domain.CallReview
}

// DispatchIncoming upserts an inbound call, reviews it with the default
// template and notifies the notify webhook.
func (s *ReviewService) DispatchIncoming(ctx context.Context, in IncomingCallInput) (*IncomingResult, error) {
	ctx, span := observability.StartSpan(ctx, "ReviewService.DispatchIncoming", attribute.String("call.id", in.CallID.String()))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	callID := strings.TrimSpace(in.CallID.String())
	if callID == "" || len(in.Timestamp) == 0 || string(in.Timestamp) == "null" {
		err = &ValidationError{Fields: []FieldError{
			{Field: "call_id", Message: "call_id и timestamp обязательны"},
			{Field: "timestamp", Message: "call_id и timestamp обязательны"},
		}}
		return nil, err
	}
	at, ok := s.parseTimestamp(in.Timestamp)
	if !ok {
		err = invalid("timestamp", "Неверный формат даты")
		return nil, err
	}

	payload := map[string]any{"callType": "inbound"}
	if in.Duration != nil {
		payload["duration"] = *in.Duration
	}
	if in.PhoneNumber != nil && *in.PhoneNumber != "" {
		payload["phoneNumber"] = in.PhoneNumber.String()
	}
	rawPayload, _ := json.Marshal(payload)

	var call *domain.CallRecord
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, gerr := repo.GetCall(ctx, tx, callID)
		switch {
		case errors.Is(gerr, repo.ErrNotFound):
			call = &domain.CallRecord{
				ID:           callID,
				DealID:       incomingDealID,
				CreatedAt:    at,
				EmployeeName: incomingEmployeeName,
				ManagerName:  incomingManagerName,
				CallText:     nonEmpty(in.Transcription),
				Payload:      datatypes.JSON(rawPayload),
			}
			return repo.CreateCall(ctx, tx, call)
		case gerr != nil:
			return gerr
		}
		fields := map[string]any{"created_at": at, "payload": datatypes.JSON(rawPayload)}
		if t := nonEmpty(in.Transcription); t != nil {
			fields["call_text"] = *t
		}
		if uerr := repo.UpdateCallFields(ctx, tx, callID, fields); uerr != nil {
			return uerr
		}
		call, gerr = repo.GetCall(ctx, tx, callID)
		return gerr
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Events, events.Event{Type: events.TypeCallIngested, CallID: call.ID, OccurredAt: s.Now.now()})

	tpl, err := repo.FindDefaultTemplate(ctx, s.DB)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrNoDefaultTemplate
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	comment := commentIncomingReview
	res, err := s.run(ctx, dispatchJob{
		kind:      "incoming",
		url:       s.AutoURL,
		userAgent: n8n.UserAgentIncoming,
		call:      call,
		template:  tpl,
		comment:   &comment,
		numbered:  true,
	})
	if err != nil {
		return nil, err
	}

	s.Notifier.Notify(ctx, n8n.IncomingCallProcessed{
		Type:     n8n.NotifyIncomingCallProcessed,
		CallID:   call.ID,
		ReviewID: res.Review.ID,
	})
	return &IncomingResult{Call: call, Review: res.Review}, nil
}

// parseTimestamp accepts epoch milliseconds, ISO-8601 or the Russian
// "DD.MM.YYYY HH:MM" format.
func (s *ReviewService) parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	var ms float64
	if json.Unmarshal(raw, &ms) == nil {
		return time.UnixMilli(int64(ms)).UTC(), true
	}
	var str string
	if json.Unmarshal(raw, &str) != nil {
		return time.Time{}, false
	}
	return utils.ParseRussianDate(str, s.Location)
}

type dispatchJob struct {
	kind      string
	url       string
	userAgent string
	call      *domain.CallRecord
	template  *domain.ChecklistTemplate
	requester *string
	comment   *string
	// fallback is sent as text when the call has no transcript.
	fallback string
	// numbered prefixes item titles with their 1-based position.
	numbered bool
}

// run creates the PENDING review, posts the payload and finalizes the
// review. Only persistence failures are returned as errors.
func (s *ReviewService) run(ctx context.Context, job dispatchJob) (*DispatchResult, error) {
	review := &domain.CallReview{
		ID:            uuid.NewString(),
		CallID:        job.call.ID,
		TemplateID:    job.template.ID,
		RequestedByID: job.requester,
		Status:        domain.ReviewPending,
		CommentText:   job.comment,
	}
	if err := repo.CreateReview(ctx, s.DB, review); err != nil {
		return nil, err
	}

	text := job.fallback
	if job.call.CallText != nil && *job.call.CallText != "" {
		text = *job.call.CallText
	}
	payload := n8n.Payload{
		ID:        job.call.ID,
		Text:      text,
		Checklist: checklistEntries(job.template.Items, job.numbered),
		ReviewID:  review.ID,
	}

	res := &DispatchResult{}
	upd := repo.ReviewUpdate{}
	resp, perr := s.Client.Post(ctx, job.kind, job.url, job.userAgent, payload)
	now := s.Now.now()
	switch {
	case perr != nil:
		res.Outcome, res.Err = OutcomeUnreachable, perr
		upd.Status = domain.ReviewFailed
		upd.N8nResponse, _ = json.Marshal(n8n.TransportFailure{Error: perr.Error(), Timestamp: now})
		log.Error().Err(perr).Str("call_id", job.call.ID).Str("review_id", review.ID).Str("kind", job.kind).Msg("n8n dispatch failed")
	default:
		res.Status, res.StatusText, res.Body = resp.Status, resp.StatusText, resp.Body
		upd.N8nResponse, _ = json.Marshal(resp.Diagnostic(now))
		if resp.OK() {
			res.Outcome = OutcomeDelivered
			upd.Status = domain.ReviewSuccess
		} else {
			res.Outcome = OutcomeRejected
			upd.Status = domain.ReviewFailed
			log.Warn().Int("status", resp.Status).Str("call_id", job.call.ID).Str("review_id", review.ID).Str("kind", job.kind).Msg("n8n rejected dispatch")
		}
	}

	// The request context may be gone after a timeout; the review must still
	// leave PENDING.
	wctx := context.WithoutCancel(ctx)
	if err := repo.UpdateReview(wctx, s.DB, review.ID, upd); err != nil {
		return nil, err
	}
	final, err := repo.GetReview(wctx, s.DB, review.ID)
	if err != nil {
		return nil, err
	}
	res.Review = final

	publish(wctx, s.Events, events.Event{
		Type:       events.TypeReviewDispatched,
		CallID:     job.call.ID,
		ReviewID:   review.ID,
		TemplateID: job.template.ID,
		Status:     string(upd.Status),
		OccurredAt: now,
	})
	return res, nil
}

// checklistEntries maps items (already in order) to payload entries.
func checklistEntries(items []domain.ChecklistItem, numbered bool) []n8n.ChecklistEntry {
	out := make([]n8n.ChecklistEntry, 0, len(items))
	for i, it := range items {
		title := it.Title
		if numbered {
			title = itoa(i+1) + "." + title
		}
		out = append(out, n8n.ChecklistEntry{
			Title:          title,
			Description:    nonEmpty(it.Description),
			EvaluationType: string(it.EvaluationType),
		})
	}
	return out
}

// DeletedReview summarizes a removed review.
type DeletedReview struct {
	ID            string `json:"id"`
	TemplateTitle string `json:"templateTitle"`
	RequestedBy   string `json:"requestedBy"`
}

// Delete removes review reviewID of call callID. Administrators and
// managers may delete any review, other users only their own.
func (s *ReviewService) Delete(ctx context.Context, p *domain.Principal, callID, reviewID string) (*DeletedReview, error) {
	ctx, span := observability.StartSpan(ctx, "ReviewService.Delete",
		attribute.String("call.id", callID),
		attribute.String("review.id", reviewID),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	caller, err := requireSession(p)
	if err != nil {
		return nil, err
	}
	rv, err := repo.GetReview(ctx, s.DB, reviewID)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrReviewNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if rv.CallID != callID {
		err = ErrReviewCallMismatch
		return nil, err
	}
	privileged := caller.Role == domain.RoleAdministrator || caller.Role == domain.RoleOCCManager
	own := rv.RequestedByID != nil && *rv.RequestedByID == caller.UserID
	if !privileged && !own {
		err = rbac.ErrForbidden
		return nil, err
	}
	if err = repo.DeleteReview(ctx, s.DB, reviewID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			err = ErrReviewNotFound
		}
		return nil, err
	}

	out := &DeletedReview{ID: rv.ID, RequestedBy: "Автоматическая проверка"}
	if rv.Template != nil {
		out.TemplateTitle = rv.Template.Title
	}
	if rv.RequestedBy != nil {
		out.RequestedBy = rv.RequestedBy.Name
	}
	return out, nil
}
