package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callqa-backend/internal/services"
)

// Login godoc
// @ID          login
// @Summary     Start a session
// @Description Exchanges email and password for a bearer token.
// @Tags        Auth
// @Accept      json
// @Produce     json
//
// @Param       body  body  services.LoginInput  true  "Credentials"
//
// @Success     200  {object} services.Session
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     401  {object} handlers.ErrorResponse "Wrong email or password"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var in services.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	sess, err := h.authSvc.Login(c.Request.Context(), in)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// Health godoc
// @ID          health
// @Summary     Health check
// @Description Pings the database and runs the date parser self-test. 500 when unhealthy.
// @Tags        System
// @Produce     json
//
// @Success     200  {object} services.Health
// @Failure     500  {object} services.Health
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	res := h.healthSvc.Check(c.Request.Context())
	if !res.Healthy() {
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	ok(c, http.StatusOK, res)
}
