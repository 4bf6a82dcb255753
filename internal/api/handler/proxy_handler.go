package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const proxyTimeout = 30 * time.Second

var (
	hopByHopHeaders = map[string]bool{
		"Connection":          true,
		"Keep-Alive":          true,
		"Proxy-Authenticate":  true,
		"Proxy-Authorization": true,
		"Te":                  true,
		"Trailers":            true,
		"Transfer-Encoding":   true,
		"Upgrade":             true,
	}
	forwardedHeaders = []string{"Accept", "User-Agent"}
)

// ProxyHandler relays GET and HEAD requests under /computer to the
// computer-use demo so the browser can embed it from the same origin.
type ProxyHandler struct {
	origin string
	client *http.Client
	logger *slog.Logger
}

func NewProxyHandler(origin string, logger *slog.Logger) *ProxyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProxyHandler{
		origin: strings.TrimRight(origin, "/"),
		client: &http.Client{Timeout: proxyTimeout},
		logger: logger,
	}
}

// Proxy handles GET|HEAD /computer and /computer/*path
func (h *ProxyHandler) Proxy(c *gin.Context) {
	target := h.origin + "/" + strings.TrimPrefix(c.Param("path"), "/")
	if c.Request.URL.RawQuery != "" {
		target += "?" + c.Request.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
		return
	}
	for _, name := range forwardedHeaders {
		if v := c.GetHeader(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("computer demo unreachable", "target", target, "error", err)
		c.JSON(http.StatusBadGateway, errorResponse(http.StatusBadGateway,
			fmt.Sprintf("Computer demo upstream unavailable at %s: %v", h.origin, err)))
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorResponse(http.StatusBadGateway,
			fmt.Sprintf("Failed reading computer demo response: %v", err)))
		return
	}

	for name, values := range resp.Header {
		if hopByHopHeaders[http.CanonicalHeaderKey(name)] || name == "Content-Length" {
			continue
		}
		for _, v := range values {
			c.Writer.Header().Add(name, v)
		}
	}

	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}
