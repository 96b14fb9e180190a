// Call HTTP handlers.
//
// This file exposes REST endpoints for call records:
//   - GET    /calls               (list, filtered by role, paginated, ETag support)
//   - POST   /calls               (manual create)
//   - GET    /calls/{id}          (details with reviews)
//   - DELETE /calls/{id}          (delete with reviews)
//   - POST   /calls/bulk-delete   (delete up to 100 calls)
//   - POST   /calls/clear-all     (administrators only, confirmation phrase)
package handlers

import (
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/rbac"
	"github.com/tbourn/callqa-backend/internal/services"
)

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	TotalCount  int64 `json:"totalCount"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// ListCallsResponse wraps a page of calls and pagination information.
type ListCallsResponse struct {
	Calls      []domain.CallRecord `json:"calls"`
	Pagination Pagination          `json:"pagination"`
}

// DeleteCallResponse reports a single call deletion.
type DeleteCallResponse struct {
	Message        string             `json:"message" example:"Звонок успешно удален"`
	DeletedCall    *domain.CallRecord `json:"deletedCall"`
	DeletedReviews int64              `json:"deletedReviews"`
}

// BulkDeleteRequest lists the calls to delete.
type BulkDeleteRequest struct {
	CallIDs []string `json:"callIds" example:"call-1,call-2"`
}

// BulkDeleteResponse reports a bulk deletion.
type BulkDeleteResponse struct {
	Message        string   `json:"message" example:"Успешно удалено 2 звонков"`
	DeletedCalls   int64    `json:"deletedCalls"`
	DeletedReviews int64    `json:"deletedReviews"`
	NotFoundIDs    []string `json:"notFoundIds,omitempty"`
}

// ClearAllRequest carries the confirmation phrase.
type ClearAllRequest struct {
	Confirmation string `json:"confirmation" example:"DELETE_ALL_CALLS"`
}

// ClearAllResponse reports a full wipe.
type ClearAllResponse struct {
	Message        string     `json:"message" example:"База данных звонков полностью очищена"`
	DeletedCalls   int64      `json:"deletedCalls"`
	DeletedReviews int64      `json:"deletedReviews"`
	ClearedBy      string     `json:"clearedBy,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

//
// Handlers
//

// ListCalls godoc
// @ID          listCalls
// @Summary     List calls (paginated)
// @Description Returns a page of calls visible to the caller. Supervisors only see their own calls. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       search         query   string  false "Substring of id, deal id, employee or manager name"
// @Param       dateFrom       query   string  false "Lower date bound (DD.MM.YYYY or ISO)"
// @Param       dateTo         query   string  false "Upper date bound, inclusive day"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       limit          query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Param       sortBy         query   string  false "Sort column"     Enums(createdAt, dealId, employeeName) default(createdAt)
// @Param       sortOrder      query   string  false "Sort direction"  Enums(asc, desc) default(desc)
//
// @Success     200  {object} handlers.ListCallsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Invalid query"
// @Failure     401  {object} handlers.ErrorResponse "No session"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /calls [get]
func (h *Handlers) ListCalls(c *gin.Context) {
	const msgBadQuery = "Неверные параметры запроса"

	ctx := c.Request.Context()
	p := principal(c)

	var q services.CallQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeValidation, msgBadQuery)
		return
	}

	// ETag pre-check (best effort).
	if p != nil {
		if count, maxTS, err := h.callSvc.Stats(ctx, p); err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.UnixNano()
			}
			qh := fnv.New32a()
			_, _ = qh.Write([]byte(c.Request.URL.RawQuery))
			etag := fmt.Sprintf(`W/"calls:%s:%d:%d:%08x"`, p.UserID, count, ts, qh.Sum32())
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, err := h.callSvc.List(ctx, p, q)
	if err != nil {
		failServiceWith(c, err, msgBadQuery)
		return
	}

	totalPages := int((page.Total + int64(page.Limit) - 1) / int64(page.Limit))
	ok(c, http.StatusOK, ListCallsResponse{
		Calls: page.Calls,
		Pagination: Pagination{
			Page:        page.Page,
			Limit:       page.Limit,
			TotalCount:  page.Total,
			TotalPages:  totalPages,
			HasNextPage: page.Page < totalPages,
			HasPrevPage: page.Page > 1,
		},
	})
}

// CreateCall godoc
// @ID          createCall
// @Summary     Create a call manually
// @Description Stores a call entered by an operator. The call date is required and must parse.
// @Tags        Calls
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  services.CreateCallInput  true  "Call"
//
// @Success     201  {object} domain.CallRecord
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     401  {object} handlers.ErrorResponse "No session"
// @Failure     409  {object} handlers.ErrorResponse "Duplicate id"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /calls [post]
func (h *Handlers) CreateCall(c *gin.Context) {
	var in services.CreateCallInput
	if !bindJSON(c, &in) {
		return
	}
	call, err := h.callSvc.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		failServiceWith(c, err, msgInvalidData)
		return
	}
	ok(c, http.StatusCreated, call)
}

// GetCall godoc
// @ID          getCall
// @Summary     Get a call
// @Description Returns a call with its reviews, newest first.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Call ID"
//
// @Success     200  {object} domain.CallRecord
// @Failure     401  {object} handlers.ErrorResponse "No session"
// @Failure     403  {object} handlers.ErrorResponse "Not visible to the caller"
// @Failure     404  {object} handlers.ErrorResponse "Call not found"
// @Router      /calls/{id} [get]
func (h *Handlers) GetCall(c *gin.Context) {
	call, err := h.callSvc.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, call)
}

// DeleteCall godoc
// @ID          deleteCall
// @Summary     Delete a call
// @Description Deletes a call and all of its reviews.
// @Tags        Calls
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Call ID"
//
// @Success     200  {object} handlers.DeleteCallResponse
// @Failure     403  {object} handlers.ErrorResponse "Missing canDeleteCalls"
// @Failure     404  {object} handlers.ErrorResponse "Call not found"
// @Router      /calls/{id} [delete]
func (h *Handlers) DeleteCall(c *gin.Context) {
	call, reviews, err := h.callSvc.Delete(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, DeleteCallResponse{
		Message:        "Звонок успешно удален",
		DeletedCall:    call,
		DeletedReviews: reviews,
	})
}

// BulkDeleteCalls godoc
// @ID          bulkDeleteCalls
// @Summary     Delete several calls
// @Description Deletes 1 to 100 calls with their reviews. Unknown ids are reported in notFoundIds; 404 when none exist.
// @Tags        Calls
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.BulkDeleteRequest  true  "Ids"
//
// @Success     200  {object} handlers.BulkDeleteResponse
// @Failure     400  {object} handlers.ErrorResponse "Empty or oversized id list"
// @Failure     403  {object} handlers.ErrorResponse "Missing canDeleteCalls"
// @Failure     404  {object} handlers.ErrorResponse "None of the calls exist"
// @Router      /calls/bulk-delete [post]
func (h *Handlers) BulkDeleteCalls(c *gin.Context) {
	var req BulkDeleteRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.callSvc.BulkDelete(c.Request.Context(), principal(c), req.CallIDs)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, BulkDeleteResponse{
		Message:        fmt.Sprintf("Успешно удалено %d звонков", res.DeletedCalls),
		DeletedCalls:   res.DeletedCalls,
		DeletedReviews: res.DeletedReviews,
		NotFoundIDs:    res.NotFoundIDs,
	})
}

// ClearAllCalls godoc
// @ID          clearAllCalls
// @Summary     Delete every call
// @Description Administrators only. Requires confirmation DELETE_ALL_CALLS.
// @Tags        Calls
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.ClearAllRequest  true  "Confirmation"
//
// @Success     200  {object} handlers.ClearAllResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing confirmation"
// @Failure     403  {object} handlers.ErrorResponse "Not an administrator"
// @Router      /calls/clear-all [post]
func (h *Handlers) ClearAllCalls(c *gin.Context) {
	var req ClearAllRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.callSvc.ClearAll(c.Request.Context(), principal(c), req.Confirmation)
	if errors.Is(err, rbac.ErrForbidden) {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "Только администраторы могут очищать всю базу данных звонков")
		return
	}
	if err != nil {
		failService(c, err)
		return
	}
	if res.AlreadyEmpty {
		ok(c, http.StatusOK, ClearAllResponse{Message: "База данных звонков уже пуста"})
		return
	}
	ts := res.Timestamp
	ok(c, http.StatusOK, ClearAllResponse{
		Message:        "База данных звонков полностью очищена",
		DeletedCalls:   res.DeletedCalls,
		DeletedReviews: res.DeletedReviews,
		ClearedBy:      res.ClearedBy,
		Timestamp:      &ts,
	})
}
