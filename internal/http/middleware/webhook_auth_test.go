package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestWebhookAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newEngine := func(secret string) *gin.Engine {
		r := gin.New()
		r.Use(WebhookAuth(secret))
		r.POST("/hook", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		return r
	}

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{"disabled without secret", "", "", http.StatusNoContent},
		{"disabled ignores header", "", "Bearer whatever", http.StatusNoContent},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"prefix of secret", "s3cret", "Bearer s3c", http.StatusUnauthorized},
		{"match", "s3cret", "Bearer s3cret", http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/hook", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			newEngine(tc.secret).ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("status = %d; want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized {
				var body map[string]any
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("body: %v", err)
				}
				if body["message"] != "Неавторизованный доступ" || body["code"] != "unauthorized" {
					t.Fatalf("body = %v", body)
				}
			}
		})
	}
}
