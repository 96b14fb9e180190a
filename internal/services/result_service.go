package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/events"
	"github.com/tbourn/callqa-backend/internal/n8n"
	"github.com/tbourn/callqa-backend/internal/observability"
	"github.com/tbourn/callqa-backend/internal/repo"
)

// resultsTotal counts result entries by source and outcome
// (processed, invalid, no_call, no_review).
var resultsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_results_total",
		Help: "Total number of analysis result entries received.",
	},
	[]string{"source", "outcome"},
)

func init() {
	prometheus.MustRegister(resultsTotal)
}

var ruPrinter = message.NewPrinter(language.Russian)

// ResultItem is one scored checklist step.
type ResultItem struct {
	Step           string   `json:"step"`
	Description    *string  `json:"description,omitempty"`
	EvaluationType string   `json:"evaluationType"        validate:"oneof=SCALE_1_10 YES_NO"`
	Done           *bool    `json:"done,omitempty"`
	Score          *float64 `json:"score,omitempty"       validate:"omitempty,min=1,max=10"`
	Evidence       *string  `json:"evidence,omitempty"`
}

// ResultStats summarizes the done flags of a result.
type ResultStats struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	NotDone int `json:"notDone"`
	Unknown int `json:"unknown"`
}

// ResultOriginal is the raw per-step output of the analysis model.
type ResultOriginal struct {
	ID      string       `json:"id"`
	Results []ResultItem `json:"results" validate:"required,dive"`
	Summary *string      `json:"summary,omitempty"`
}

// AnalysisResult is one entry posted by the analysis workflow.
type AnalysisResult struct {
	ID              *string         `json:"id"              validate:"omitempty,min=1"`
	ReviewID        *string         `json:"reviewId"`
	OK              *bool           `json:"ok"              validate:"required"`
	Checklist       []ResultItem    `json:"checklist"       validate:"omitempty,dive"`
	Triggers        []string        `json:"triggers"`
	Recommendations []string        `json:"recommendations"`
	Stats           *ResultStats    `json:"stats"`
	Markdown        *string         `json:"markdown"`
	Original        *ResultOriginal `json:"original"`

	// rawOriginal keeps original exactly as received.
	rawOriginal json.RawMessage
}

// callID returns id, else original.id.
func (r *AnalysisResult) callID() string {
	if r.ID != nil && *r.ID != "" {
		return *r.ID
	}
	if r.Original != nil {
		return r.Original.ID
	}
	return ""
}

// stats returns the posted stats, recomputed from original.results when
// they are absent or empty.
func (r *AnalysisResult) stats() ResultStats {
	if (r.Stats == nil || r.Stats.Total == 0) && r.Original != nil {
		s := ResultStats{Total: len(r.Original.Results)}
		for _, it := range r.Original.Results {
			switch {
			case it.Done == nil:
				s.Unknown++
			case *it.Done:
				s.Done++
			default:
				s.NotDone++
			}
		}
		return s
	}
	if r.Stats == nil {
		return ResultStats{}
	}
	return *r.Stats
}

// StoredAnalysis is the analysisResults document written on a review.
type StoredAnalysis struct {
	OK              bool            `json:"ok"`
	Checklist       []ResultItem    `json:"checklist"`
	Triggers        []string        `json:"triggers"`
	Recommendations []string        `json:"recommendations"`
	Stats           ResultStats     `json:"stats"`
	Markdown        string          `json:"markdown"`
	Original        json.RawMessage `json:"original"`
	ProcessedAt     string          `json:"processedAt"`
}

// BatchResult reports a batch ingestion.
type BatchResult struct {
	Processed int    `json:"processedReviews"`
	Message   string `json:"message"`
}

// ResultService finalizes reviews with the results the analysis workflow
// posts back.
type ResultService struct {
	DB       *gorm.DB
	Notifier *n8n.Notifier
	Events   events.Publisher
	Now      Clock
}

// decodeResult parses and validates one entry.
func decodeResult(raw json.RawMessage) (*AnalysisResult, error) {
	var r AnalysisResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	var orig struct {
		Original json.RawMessage `json:"original"`
	}
	_ = json.Unmarshal(raw, &orig)
	r.rawOriginal = orig.Original
	if err := validateStruct(r); err != nil {
		return nil, err
	}
	return &r, nil
}

// splitEntries returns the entries of a single object or an array body.
func splitEntries(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}
	if len(body) > 0 && body[0] == '[' {
		var out []json.RawMessage
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, ErrInvalidJSON
		}
		return out, nil
	}
	return []json.RawMessage{body}, nil
}

// IngestBatch applies every valid entry of body. The target review is
// reviewId when given, else the latest open review of the call (id or
// original.id). Entries that fail validation, name neither or match no
// review are skipped.
func (s *ResultService) IngestBatch(ctx context.Context, body []byte) (*BatchResult, error) {
	ctx, span := observability.StartSpan(ctx, "ResultService.IngestBatch")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	entries, err := splitEntries(body)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("results.count", len(entries)))

	processed := 0
	for i, raw := range entries {
		r, derr := decodeResult(raw)
		if derr != nil {
			resultsTotal.WithLabelValues("batch", "invalid").Inc()
			log.Warn().Err(derr).Int("index", i).Msg("skipping invalid analysis result")
			continue
		}
		callID := r.callID()
		var rv *domain.CallReview
		var lerr error
		switch {
		case r.ReviewID != nil && *r.ReviewID != "":
			rv, lerr = repo.GetReview(ctx, s.DB, *r.ReviewID)
		case callID != "":
			rv, lerr = repo.LatestOpenReview(ctx, s.DB, callID)
		default:
			resultsTotal.WithLabelValues("batch", "no_call").Inc()
			log.Warn().Int("index", i).Msg("skipping analysis result without call or review id")
			continue
		}
		if errors.Is(lerr, repo.ErrNotFound) {
			resultsTotal.WithLabelValues("batch", "no_review").Inc()
			log.Warn().Str("call_id", callID).Msg("no review for analysis result")
			continue
		}
		if lerr != nil {
			err = lerr
			return nil, err
		}

		if _, err = s.apply(ctx, rv, r); err != nil {
			return nil, err
		}
		resultsTotal.WithLabelValues("batch", "processed").Inc()
		processed++
	}

	return &BatchResult{
		Processed: processed,
		Message:   ruPrinter.Sprintf("Обработано %d результатов анализа", processed),
	}, nil
}

// IngestForReview applies one result to review reviewID.
func (s *ResultService) IngestForReview(ctx context.Context, reviewID string, body []byte) (*domain.CallReview, error) {
	ctx, span := observability.StartSpan(ctx, "ResultService.IngestForReview", attribute.String("review.id", reviewID))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if !json.Valid(body) {
		err = ErrInvalidJSON
		return nil, err
	}
	r, err := decodeResult(body)
	if err != nil {
		if AsValidationError(err) == nil {
			err = invalid("body", "Неверный формат данных")
		}
		resultsTotal.WithLabelValues("review", "invalid").Inc()
		return nil, err
	}
	rv, err := repo.GetReview(ctx, s.DB, reviewID)
	if errors.Is(err, repo.ErrNotFound) {
		resultsTotal.WithLabelValues("review", "no_review").Inc()
		err = ErrReviewNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	out, err := s.apply(ctx, rv, r)
	if err != nil {
		return nil, err
	}
	resultsTotal.WithLabelValues("review", "processed").Inc()
	return out, nil
}

// apply writes r onto rv and returns the reloaded review.
func (s *ResultService) apply(ctx context.Context, rv *domain.CallReview, r *AnalysisResult) (*domain.CallReview, error) {
	now := s.Now.now()
	doc := StoredAnalysis{
		OK:              *r.OK,
		Checklist:       r.Checklist,
		Triggers:        r.Triggers,
		Recommendations: r.Recommendations,
		Stats:           r.stats(),
		Original:        r.rawOriginal,
		ProcessedAt:     now.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if doc.Checklist == nil {
		doc.Checklist = []ResultItem{}
	}
	if doc.Triggers == nil {
		doc.Triggers = []string{}
	}
	if doc.Recommendations == nil {
		doc.Recommendations = []string{}
	}
	if r.Markdown != nil {
		doc.Markdown = *r.Markdown
	}
	if len(doc.Original) == 0 {
		doc.Original = json.RawMessage("null")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	status := domain.ReviewFailed
	if doc.OK {
		status = domain.ReviewSuccess
	}
	err = repo.UpdateReview(ctx, s.DB, rv.ID, repo.ReviewUpdate{
		Status:          status,
		AnalysisResults: datatypes.JSON(raw),
		CompletedAt:     &now,
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("review_id", rv.ID).Str("call_id", rv.CallID).Str("status", string(status)).Msg("analysis results stored")

	publish(ctx, s.Events, events.Event{
		Type:       events.TypeReviewCompleted,
		CallID:     rv.CallID,
		ReviewID:   rv.ID,
		TemplateID: rv.TemplateID,
		Status:     string(status),
		OccurredAt: now,
	})
	return repo.GetReview(ctx, s.DB, rv.ID)
}

// CompletionInput finalizes a review of the inbound-call pipeline.
type CompletionInput struct {
	ReviewID        string          `json:"reviewId"`
	AnalysisResults json.RawMessage `json:"analysisResults"`
	Status          string          `json:"status"`
}

// CompleteIncoming stores the results of an inbound-call review verbatim,
// marks the diagnostic as completed and sends the completion notification.
// A status of "success" means SUCCESS, anything else FAILED.
func (s *ResultService) CompleteIncoming(ctx context.Context, in CompletionInput) (*domain.CallReview, error) {
	ctx, span := observability.StartSpan(ctx, "ResultService.CompleteIncoming", attribute.String("review.id", in.ReviewID))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if strings.TrimSpace(in.ReviewID) == "" {
		err = invalid("reviewId", "reviewId обязателен")
		return nil, err
	}
	results := bytes.TrimSpace(in.AnalysisResults)
	if len(results) == 0 || isFalsyJSON(results) {
		err = invalid("analysisResults", "analysisResults обязательны")
		return nil, err
	}

	rv, err := repo.GetReview(ctx, s.DB, in.ReviewID)
	if errors.Is(err, repo.ErrNotFound) {
		err = ErrReviewNotFound
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	now := s.Now.now()
	diag := map[string]any{}
	if len(rv.N8nResponse) > 0 {
		_ = json.Unmarshal(rv.N8nResponse, &diag)
		if diag == nil {
			diag = map[string]any{}
		}
	}
	diag["analysisCompleted"] = true
	diag["timestamp"] = now
	rawDiag, err := json.Marshal(diag)
	if err != nil {
		return nil, err
	}

	status := domain.ReviewFailed
	if in.Status == "success" {
		status = domain.ReviewSuccess
	}
	err = repo.UpdateReview(ctx, s.DB, rv.ID, repo.ReviewUpdate{
		Status:          status,
		N8nResponse:     datatypes.JSON(rawDiag),
		AnalysisResults: datatypes.JSON(results),
		CompletedAt:     &now,
	})
	if err != nil {
		return nil, err
	}
	resultsTotal.WithLabelValues("incoming", "processed").Inc()

	out, err := repo.GetReview(ctx, s.DB, rv.ID)
	if err != nil {
		return nil, err
	}
	call, err := repo.GetCall(ctx, s.DB, out.CallID)
	if err != nil {
		return nil, err
	}
	call.Reviews = nil
	out.Call = call

	publish(ctx, s.Events, events.Event{
		Type:       events.TypeReviewCompleted,
		CallID:     out.CallID,
		ReviewID:   out.ID,
		TemplateID: out.TemplateID,
		Status:     string(status),
		OccurredAt: now,
	})
	s.Notifier.Notify(ctx, completionNotice(out))
	return out, nil
}

func completionNotice(rv *domain.CallReview) n8n.AnalysisCompleted {
	msg := n8n.AnalysisCompleted{
		Type:            n8n.NotifyAnalysisCompleted,
		CallID:          rv.CallID,
		ReviewID:        rv.ID,
		Status:          string(rv.Status),
		AnalysisResults: json.RawMessage(rv.AnalysisResults),
		CompletedAt:     rv.CompletedAt,
	}
	if c := rv.Call; c != nil {
		msg.Call = n8n.NotifiedCall{
			ID:           c.ID,
			DealID:       c.DealID,
			EmployeeName: c.EmployeeName,
			ManagerName:  c.ManagerName,
			CreatedAt:    c.CreatedAt,
			Payload:      json.RawMessage(c.Payload),
		}
	}
	if t := rv.Template; t != nil {
		msg.Template.Title = t.Title
		msg.Template.Items = make([]n8n.NotifiedItem, 0, len(t.Items))
		for _, it := range t.Items {
			msg.Template.Items = append(msg.Template.Items, n8n.NotifiedItem{
				Title:          it.Title,
				Description:    it.Description,
				EvaluationType: string(it.EvaluationType),
				OrderIndex:     it.OrderIndex,
			})
		}
	}
	return msg
}

// isFalsyJSON reports null, false, 0 and "".
func isFalsyJSON(b []byte) bool {
	switch string(b) {
	case "null", "false", "0", `""`:
		return true
	}
	return false
}
