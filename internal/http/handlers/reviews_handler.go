// Review HTTP handlers.
//
// This file exposes endpoints that start and remove call reviews:
//   - POST   /calls/{id}/send                  (manual dispatch to the analysis workflow)
//   - DELETE /calls/{id}/reviews/{reviewId}    (delete one review)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and the same caller already
// dispatched the same call with that key, the stored review is returned with
// the original status and `Idempotency-Replayed: true`; nothing is re-sent.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/http/middleware"
	"github.com/tbourn/callqa-backend/internal/n8n"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/services"
)

// DispatchResponse is the answer of a manual dispatch. Success mirrors
// whether the analysis workflow accepted the call.
type DispatchResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message" example:"Чек-лист успешно отправлен в n8n"`
	Review      *domain.CallReview `json:"review"`
	N8nResponse json.RawMessage    `json:"n8nResponse,omitempty" swaggertype:"object"`
}

// DeleteReviewResponse reports a removed review.
type DeleteReviewResponse struct {
	Message       string                  `json:"message" example:"Проверка успешно удалена"`
	DeletedReview *services.DeletedReview `json:"deletedReview"`
}

// SendToAnalysis godoc
// @ID          sendToAnalysis
// @Summary     Send a call for analysis
// @Description Creates a review of the call with the chosen checklist and posts it to the analysis workflow. 200 when accepted, 422 when the workflow answered with an error, 500 when it was unreachable; the review is stored in every case.
// @Tags        Reviews
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id               path    string                    true   "Call ID"
// @Param       Idempotency-Key  header  string                    false  "Idempotency key for safe retries"
// @Param       body             body    services.DispatchInput    true   "Template and optional comment"
//
// @Success     200  {object} handlers.DispatchResponse
// @Header      200  {string} Idempotency-Replayed "true when served from a previous dispatch"
// @Failure     400  {object} handlers.ErrorResponse "Validation failed or template inactive"
// @Failure     403  {object} handlers.ErrorResponse "Missing canSendToAnalysis"
// @Failure     404  {object} handlers.ErrorResponse "Call or template not found"
// @Failure     422  {object} handlers.DispatchResponse "Workflow rejected the call"
// @Failure     500  {object} handlers.DispatchResponse "Workflow unreachable"
// @Router      /calls/{id}/send [post]
func (h *Handlers) SendToAnalysis(c *gin.Context) {
	var in services.DispatchInput
	if !bindJSON(c, &in) {
		return
	}
	idemKey, _ := middleware.GetIdempotencyKey(c)

	res, err := h.reviewSvc.Dispatch(c.Request.Context(), principal(c), c.Param("id"), in, idemKey)
	if err != nil {
		failService(c, err)
		return
	}
	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}

	switch res.Outcome {
	case services.OutcomeDelivered:
		ok(c, http.StatusOK, DispatchResponse{
			Success:     true,
			Message:     "Чек-лист успешно отправлен в n8n",
			Review:      res.Review,
			N8nResponse: res.Body,
		})
	case services.OutcomeRejected:
		ok(c, http.StatusUnprocessableEntity, DispatchResponse{
			Message:     fmt.Sprintf("Ошибка n8n: %d %s", res.Status, res.StatusText),
			Review:      res.Review,
			N8nResponse: res.Body,
		})
	default:
		lg := middleware.LoggerFrom(c)
		lg.Error().Str("call_id", c.Param("id")).Str("review_id", reviewID(res.Review)).Msg("analysis workflow unreachable")
		ok(c, http.StatusInternalServerError, DispatchResponse{
			Message: "Ошибка отправки в n8n: " + transportError(res),
			Review:  res.Review,
		})
	}
}

// DeleteReview godoc
// @ID          deleteReview
// @Summary     Delete a review
// @Description Administrators and OCC managers may delete any review; other users only the reviews they requested.
// @Tags        Reviews
// @Produce     json
// @Security    BearerAuth
//
// @Param       id        path  string  true  "Call ID"
// @Param       reviewId  path  string  true  "Review ID"
//
// @Success     200  {object} handlers.DeleteReviewResponse
// @Failure     400  {object} handlers.ErrorResponse "Review belongs to another call"
// @Failure     403  {object} handlers.ErrorResponse "Not allowed to delete this review"
// @Failure     404  {object} handlers.ErrorResponse "Review not found"
// @Router      /calls/{id}/reviews/{reviewId} [delete]
func (h *Handlers) DeleteReview(c *gin.Context) {
	deleted, err := h.reviewSvc.Delete(c.Request.Context(), principal(c), c.Param("id"), c.Param("reviewId"))
	if errors.Is(err, rbac.ErrForbidden) {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "Недостаточно прав для удаления этой проверки")
		return
	}
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, DeleteReviewResponse{Message: "Проверка успешно удалена", DeletedReview: deleted})
}

// transportError recovers the transport failure text, from the result or,
// on replay, from the stored diagnostic.
func transportError(res *services.DispatchResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	if res.Review != nil {
		var tf n8n.TransportFailure
		if json.Unmarshal(res.Review.N8nResponse, &tf) == nil && tf.Error != "" {
			return tf.Error
		}
	}
	return "нет ответа"
}

func reviewID(rv *domain.CallReview) string {
	if rv == nil {
		return ""
	}
	return rv.ID
}
