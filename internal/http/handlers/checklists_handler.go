// Checklist template HTTP handlers.
//
// All endpoints require the canManageTemplates permission:
//   - GET    /checklists              (list, ?active=true for active only)
//   - POST   /checklists              (create)
//   - GET    /checklists/{id}         (details)
//   - PUT    /checklists/{id}         (replace header and items)
//   - DELETE /checklists/{id}         (409 while referenced by reviews)
//   - PATCH  /checklists/{id}/toggle  (flip isActive)
//   - PATCH  /checklists/set-default  (make one template the default)
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/services"
)

// MessageResponse is a bare confirmation message.
type MessageResponse struct {
	Message string `json:"message" example:"Чек-лист успешно удален"`
}

// ChecklistResponse pairs a confirmation with the affected template.
type ChecklistResponse struct {
	Message   string                    `json:"message" example:"Дефолтный чек-лист установлен"`
	Checklist *domain.ChecklistTemplate `json:"checklist"`
}

// SetDefaultRequest selects the new default template.
type SetDefaultRequest struct {
	ChecklistID string `json:"checklistId" example:"0b6b1d6e-9a51-4a55-a2c5-4c8f3e0f1a11"`
}

// ListChecklists godoc
// @ID          listChecklists
// @Summary     List checklist templates
// @Description Returns templates with their items in order, newest first.
// @Tags        Checklists
// @Produce     json
// @Security    BearerAuth
//
// @Param       active  query  bool  false  "Only active templates"
//
// @Success     200  {array}  domain.ChecklistTemplate
// @Failure     401  {object} handlers.ErrorResponse "No session"
// @Failure     403  {object} handlers.ErrorResponse "Missing canManageTemplates"
// @Router      /checklists [get]
func (h *Handlers) ListChecklists(c *gin.Context) {
	list, err := h.templateSvc.List(c.Request.Context(), principal(c), c.Query("active") == "true")
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

// CreateChecklist godoc
// @ID          createChecklist
// @Summary     Create a checklist template
// @Tags        Checklists
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  services.TemplateInput  true  "Template with at least one item"
//
// @Success     201  {object} domain.ChecklistTemplate
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     403  {object} handlers.ErrorResponse "Missing canManageTemplates"
// @Router      /checklists [post]
func (h *Handlers) CreateChecklist(c *gin.Context) {
	var in services.TemplateInput
	if !bindJSON(c, &in) {
		return
	}
	tpl, err := h.templateSvc.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		failServiceWith(c, err, msgInvalidData)
		return
	}
	ok(c, http.StatusCreated, tpl)
}

// GetChecklist godoc
// @ID          getChecklist
// @Summary     Get a checklist template
// @Tags        Checklists
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Template ID"
//
// @Success     200  {object} domain.ChecklistTemplate
// @Failure     404  {object} handlers.ErrorResponse "Template not found"
// @Router      /checklists/{id} [get]
func (h *Handlers) GetChecklist(c *gin.Context) {
	tpl, err := h.templateSvc.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, tpl)
}

// UpdateChecklist godoc
// @ID          updateChecklist
// @Summary     Replace a checklist template
// @Description Overwrites the header fields and replaces all items atomically.
// @Tags        Checklists
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                  true  "Template ID"
// @Param       body  body  services.TemplateInput  true  "Template"
//
// @Success     200  {object} domain.ChecklistTemplate
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     404  {object} handlers.ErrorResponse "Template not found"
// @Router      /checklists/{id} [put]
func (h *Handlers) UpdateChecklist(c *gin.Context) {
	var in services.TemplateInput
	if !bindJSON(c, &in) {
		return
	}
	tpl, err := h.templateSvc.Update(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		failServiceWith(c, err, msgInvalidData)
		return
	}
	ok(c, http.StatusOK, tpl)
}

// DeleteChecklist godoc
// @ID          deleteChecklist
// @Summary     Delete a checklist template
// @Tags        Checklists
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Template ID"
//
// @Success     200  {object} handlers.MessageResponse
// @Failure     404  {object} handlers.ErrorResponse "Template not found"
// @Failure     409  {object} handlers.ErrorResponse "Template referenced by reviews"
// @Router      /checklists/{id} [delete]
func (h *Handlers) DeleteChecklist(c *gin.Context) {
	if err := h.templateSvc.Delete(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "Чек-лист успешно удален"})
}

// ToggleChecklist godoc
// @ID          toggleChecklist
// @Summary     Activate or deactivate a checklist template
// @Tags        Checklists
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "Template ID"
//
// @Success     200  {object} handlers.ChecklistResponse
// @Failure     404  {object} handlers.ErrorResponse "Template not found"
// @Router      /checklists/{id}/toggle [patch]
func (h *Handlers) ToggleChecklist(c *gin.Context) {
	tpl, err := h.templateSvc.Toggle(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	state := "деактивирован"
	if tpl.IsActive {
		state = "активирован"
	}
	ok(c, http.StatusOK, ChecklistResponse{
		Message:   fmt.Sprintf("Чек-лист %q %s", tpl.Title, state),
		Checklist: tpl,
	})
}

// SetDefaultChecklist godoc
// @ID          setDefaultChecklist
// @Summary     Set the default checklist template
// @Description Clears the previous default and marks the template default and active.
// @Tags        Checklists
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.SetDefaultRequest  true  "Template ID"
//
// @Success     200  {object} handlers.ChecklistResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing checklistId"
// @Failure     404  {object} handlers.ErrorResponse "Template not found"
// @Router      /checklists/set-default [patch]
func (h *Handlers) SetDefaultChecklist(c *gin.Context) {
	var req SetDefaultRequest
	if !bindJSON(c, &req) {
		return
	}
	tpl, err := h.templateSvc.SetDefault(c.Request.Context(), principal(c), req.ChecklistID)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, ChecklistResponse{Message: "Дефолтный чек-лист установлен", Checklist: tpl})
}
