// Webhook HTTP handlers.
//
// These endpoints are called by the analysis workflow and other producers,
// not by browser sessions. They are guarded by an optional bearer secret
// (see middleware.WebhookAuth):
//   - POST /webhook/calls                    (camelCase call creation, optional auto review)
//   - POST /webhooks/n8n/call                (snake_case call upsert)
//   - POST /webhook/n8n/results              (batch analysis results)
//   - POST /webhook/n8n/results/{reviewId}   (results for one review)
//   - POST /incoming-call                    (inbound call pipeline)
//   - POST /incoming-call/results            (inbound call completion)
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/services"
)

// appUserAgent marks requests coming from the application itself; those
// never trigger an automatic review.
const appUserAgent = "CallAI-App"

// WebhookCallResponse is the answer of webhook call creation.
type WebhookCallResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message" example:"Звонок успешно добавлен"`
	Call    *domain.CallRecord `json:"call"`
}

// N8NCallResponse is the answer of the n8n call upsert.
type N8NCallResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message" example:"Звонок успешно сохранен"`
	CallID  string `json:"callId"`
}

// BatchResultsResponse is the answer of batch result ingestion.
type BatchResultsResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message" example:"Обработано 1 результатов анализа"`
	ProcessedReviews int    `json:"processedReviews"`
}

// ReviewResultsResponse is the answer of single-review ingestion.
type ReviewResultsResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message" example:"Результаты анализа успешно сохранены"`
	Review  *domain.CallReview `json:"review"`
}

// IncomingCallResponse is the answer of the inbound call pipeline.
type IncomingCallResponse struct {
	Success bool               `json:"success"`
	Call    *domain.CallRecord `json:"call"`
	Review  *domain.CallReview `json:"review"`
}

// rawJSON reads the whole body and answers 400 unless it is JSON.
func rawJSON(c *gin.Context) ([]byte, bool) {
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		fail(c, http.StatusBadRequest, ErrCodeInvalidJSON, msgInvalidJSON)
		return nil, false
	}
	return body, true
}

// WebhookCreateCall godoc
// @ID          webhookCreateCall
// @Summary     Create a call from a webhook
// @Description Creates a call from a camelCase body; unknown keys are kept in payload. An automatic review is started unless the User-Agent contains CallAI-App.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Security    WebhookBearer
//
// @Param       body  body  object  true  "Call with id, dealId, employeeName, managerName and optional createdAt, initiatedBy, callText"
//
// @Success     201  {object} handlers.WebhookCallResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing fields or malformed JSON"
// @Failure     401  {object} handlers.ErrorResponse "Bad webhook secret"
// @Failure     409  {object} handlers.ErrorResponse "DUPLICATE_ID"
// @Router      /webhook/calls [post]
func (h *Handlers) WebhookCreateCall(c *gin.Context) {
	body, good := rawJSON(c)
	if !good {
		return
	}
	auto := !strings.Contains(c.GetHeader("User-Agent"), appUserAgent)

	call, err := h.callSvc.IngestWebhook(c.Request.Context(), body, auto)
	if errors.Is(err, services.ErrDuplicateCall) {
		fail(c, http.StatusConflict, ErrCodeDuplicateID, msgDuplicateCall)
		return
	}
	if err != nil {
		failServiceWith(c, err, "Отсутствуют обязательные поля")
		return
	}
	ok(c, http.StatusCreated, WebhookCallResponse{Success: true, Message: "Звонок успешно добавлен", Call: call})
}

// N8NUpsertCall godoc
// @ID          n8nUpsertCall
// @Summary     Upsert a call from the analysis workflow
// @Description Inserts or overwrites a call from a snake_case body; the whole body is kept as payload.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Security    WebhookBearer
//
// @Param       body  body  services.N8NCallInput  true  "Call"
//
// @Success     200  {object} handlers.N8NCallResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing fields or malformed JSON"
// @Failure     401  {object} handlers.ErrorResponse "Bad token"
// @Failure     405  {object} handlers.ErrorResponse "Method not allowed"
// @Router      /webhooks/n8n/call [post]
func (h *Handlers) N8NUpsertCall(c *gin.Context) {
	body, good := rawJSON(c)
	if !good {
		return
	}
	call, err := h.callSvc.UpsertFromN8N(c.Request.Context(), body)
	if err != nil {
		failServiceWith(c, err, "Отсутствуют обязательные поля")
		return
	}
	ok(c, http.StatusOK, N8NCallResponse{OK: true, Message: "Звонок успешно сохранен", CallID: call.ID})
}

// IngestResults godoc
// @ID          ingestResults
// @Summary     Ingest analysis results
// @Description Accepts one result object or an array. Each entry is matched by reviewId, or by id to the newest open review of that call. Invalid and unmatched entries are skipped.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Security    WebhookBearer
//
// @Param       body  body  []services.AnalysisResult  true  "Result or results"
//
// @Success     200  {object} handlers.BatchResultsResponse
// @Failure     400  {object} handlers.ErrorResponse "Malformed JSON"
// @Router      /webhook/n8n/results [post]
func (h *Handlers) IngestResults(c *gin.Context) {
	body, good := rawJSON(c)
	if !good {
		return
	}
	res, err := h.resultSvc.IngestBatch(c.Request.Context(), body)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, BatchResultsResponse{Success: true, Message: res.Message, ProcessedReviews: res.Processed})
}

// IngestReviewResults godoc
// @ID          ingestReviewResults
// @Summary     Ingest results for one review
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Security    WebhookBearer
//
// @Param       reviewId  path  string                   true  "Review ID"
// @Param       body      body  services.AnalysisResult  true  "Result"
//
// @Success     200  {object} handlers.ReviewResultsResponse
// @Failure     400  {object} handlers.ErrorResponse "Schema mismatch"
// @Failure     404  {object} handlers.ErrorResponse "Review not found"
// @Router      /webhook/n8n/results/{reviewId} [post]
func (h *Handlers) IngestReviewResults(c *gin.Context) {
	body, good := rawJSON(c)
	if !good {
		return
	}
	rv, err := h.resultSvc.IngestForReview(c.Request.Context(), c.Param("reviewId"), body)
	if err != nil {
		failServiceWith(c, err, msgInvalidData)
		return
	}
	ok(c, http.StatusOK, ReviewResultsResponse{Success: true, Message: "Результаты анализа успешно сохранены", Review: rv})
}

// IncomingCall godoc
// @ID          incomingCall
// @Summary     Process an inbound call
// @Description Upserts the call, reviews it with the default checklist and notifies the workflow. A failed dispatch still answers 201 with a FAILED review.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Security    WebhookBearer
//
// @Param       body  body  services.IncomingCallInput  true  "Inbound call"
//
// @Success     201  {object} handlers.IncomingCallResponse
// @Failure     400  {object} handlers.ErrorResponse "call_id and timestamp are required"
// @Failure     404  {object} handlers.ErrorResponse "No active default checklist"
// @Router      /incoming-call [post]
func (h *Handlers) IncomingCall(c *gin.Context) {
	var in services.IncomingCallInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.reviewSvc.DispatchIncoming(c.Request.Context(), in)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, IncomingCallResponse{Success: true, Call: res.Call, Review: res.Review})
}

// IncomingCallResults godoc
// @ID          incomingCallResults
// @Summary     Complete an inbound call review
// @Description Stores analysisResults verbatim; status "success" marks the review SUCCESS, anything else FAILED. Sends the completion notification.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
// @Security    WebhookBearer
//
// @Param       body  body  services.CompletionInput  true  "Completion"
//
// @Success     200  {object} handlers.ReviewResultsResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing reviewId or analysisResults"
// @Failure     404  {object} handlers.ErrorResponse "Review not found"
// @Router      /incoming-call/results [post]
func (h *Handlers) IncomingCallResults(c *gin.Context) {
	var in services.CompletionInput
	if !bindJSON(c, &in) {
		return
	}
	rv, err := h.resultSvc.CompleteIncoming(c.Request.Context(), in)
	if errors.Is(err, services.ErrReviewNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "Запись проверки не найдена")
		return
	}
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ReviewResultsResponse{Success: true, Message: "Результаты анализа успешно сохранены", Review: rv})
}
