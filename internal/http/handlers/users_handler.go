// User HTTP handlers.
//
// Admin endpoints require canManageUsers:
//   - GET    /admin/users        (list with dependent row counts)
//   - POST   /admin/users        (create)
//   - GET    /admin/users/{id}   (details)
//   - PUT    /admin/users/{id}   (partial update)
//   - DELETE /admin/users/{id}   (delete a user without dependents)
//
// Profile endpoints only need a session:
//   - GET    /profile            (own account)
//   - PUT    /profile            (updateProfile | changePassword)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/services"
)

// ProfileResponse is the answer of a profile update. User is omitted after
// a password change.
type ProfileResponse struct {
	Message string       `json:"message" example:"Профиль успешно обновлен"`
	User    *domain.User `json:"user,omitempty"`
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List users
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {array}  services.UserView
// @Failure     403  {object} handlers.ErrorResponse "Missing canManageUsers"
// @Router      /admin/users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.userSvc.List(c.Request.Context(), principal(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, users)
}

// CreateUser godoc
// @ID          createUser
// @Summary     Create a user
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  services.CreateUserInput  true  "User"
//
// @Success     201  {object} domain.User
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     409  {object} handlers.ErrorResponse "Email taken"
// @Router      /admin/users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var in services.CreateUserInput
	if !bindJSON(c, &in) {
		return
	}
	u, err := h.userSvc.Create(c.Request.Context(), principal(c), in)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a user
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "User ID"
//
// @Success     200  {object} services.UserView
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /admin/users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.userSvc.Get(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateUser godoc
// @ID          updateUser
// @Summary     Update a user
// @Description Only the supplied fields change. Administrators cannot change their own role.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  string                    true  "User ID"
// @Param       body  body  services.UpdateUserInput  true  "Fields to change"
//
// @Success     200  {object} domain.User
// @Failure     400  {object} handlers.ErrorResponse "Validation failed or own role change"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     409  {object} handlers.ErrorResponse "Email taken"
// @Router      /admin/users/{id} [put]
func (h *Handlers) UpdateUser(c *gin.Context) {
	var in services.UpdateUserInput
	if !bindJSON(c, &in) {
		return
	}
	u, err := h.userSvc.Update(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// DeleteUser godoc
// @ID          deleteUser
// @Summary     Delete a user
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  string  true  "User ID"
//
// @Success     200  {object} handlers.MessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Own account or user with data"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /admin/users/{id} [delete]
func (h *Handlers) DeleteUser(c *gin.Context) {
	if err := h.userSvc.Delete(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "Пользователь успешно удален"})
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Get the caller's account
// @Tags        Profile
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object} domain.User
// @Failure     401  {object} handlers.ErrorResponse "No session"
// @Router      /profile [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	u, err := h.userSvc.Profile(c.Request.Context(), principal(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update the caller's account
// @Description action=updateProfile changes name and email; action=changePassword checks the current password.
// @Tags        Profile
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  services.ProfileInput  true  "Profile change"
//
// @Success     200  {object} handlers.ProfileResponse
// @Failure     400  {object} handlers.ErrorResponse "Validation failed, wrong password or unknown action"
// @Failure     409  {object} handlers.ErrorResponse "Email taken"
// @Router      /profile [put]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var in services.ProfileInput
	if !bindJSON(c, &in) {
		return
	}
	u, err := h.userSvc.UpdateProfile(c.Request.Context(), principal(c), in)
	if errors.Is(err, services.ErrDuplicateEmail) {
		fail(c, http.StatusConflict, ErrCodeConflict, "Email уже используется другим пользователем")
		return
	}
	if err != nil {
		failService(c, err)
		return
	}
	if in.Action == services.ActionChangePassword {
		ok(c, http.StatusOK, ProfileResponse{Message: "Пароль успешно изменен"})
		return
	}
	ok(c, http.StatusOK, ProfileResponse{Message: "Профиль успешно обновлен", User: u})
}
