package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRouter(origins []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil))))
	router.Use(CORSMiddleware(origins))
	router.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/panic", func(c *gin.Context) { panic("boom") })
	router.GET("/error", func(c *gin.Context) { c.Error(errors.New("went wrong")) })
	return router
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		origins       []string
		origin        string
		method        string
		expectedCode  int
		expectedAllow string
	}{
		{"allowed origin echoed", []string{"http://localhost:5173"}, "http://localhost:5173", http.MethodGet, http.StatusOK, "http://localhost:5173"},
		{"unknown origin gets no header", []string{"http://localhost:5173"}, "http://evil.example", http.MethodGet, http.StatusOK, ""},
		{"empty list allows any", nil, "http://anywhere.example", http.MethodGet, http.StatusOK, "http://anywhere.example"},
		{"preflight short-circuits", []string{"http://localhost:5173"}, "http://localhost:5173", http.MethodOptions, http.StatusNoContent, "http://localhost:5173"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/ok", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			newRouter(tt.origins).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, tt.expectedAllow, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.expectedAllow != "" {
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	router := newRouter(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error","message":"An unexpected error occurred","code":500}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/error", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "went wrong")
}
