package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProxyRouter(t *testing.T, origin string) *testEnv {
	t.Helper()

	proxy := NewProxyHandler(origin, discard)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	for _, path := range []string{"/computer", "/computer/*path"} {
		router.GET(path, proxy.Proxy)
		router.HEAD(path, proxy.Proxy)
	}
	return &testEnv{router: router}
}

func TestProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/old":
			http.Redirect(w, r, "/vnc.html", http.StatusFound)
			return
		case "/vnc.html", "/":
		default:
			http.NotFound(w, r)
			return
		}
		assert.Empty(t, r.Header.Get("Cookie"))
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("X-Upstream", "demo")
		w.Header().Set("Connection", "close")
		w.Write([]byte("path=" + r.URL.Path + " query=" + r.URL.RawQuery + " ua=" + r.Header.Get("User-Agent")))
	}))
	t.Cleanup(upstream.Close)

	env := setupProxyRouter(t, upstream.URL+"/")

	req := httptest.NewRequest(http.MethodGet, "/computer/vnc.html?autoconnect=1", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("Cookie", "session=secret")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "path=/vnc.html query=autoconnect=1 ua=test-agent", w.Body.String())
	assert.Equal(t, "demo", w.Header().Get("X-Upstream"))
	assert.Empty(t, w.Header().Get("Connection"))

	w = env.makeRequest(t, "/computer")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "path=/ ")

	w = env.makeRequest(t, "/computer/old")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "path=/vnc.html")

	w = env.makeRequest(t, "/computer/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProxyUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	origin := upstream.URL
	upstream.Close()

	env := setupProxyRouter(t, origin)

	w := env.makeRequest(t, "/computer/vnc.html")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, http.StatusBadGateway, parseErrorResponse(t, w).Code)
}
