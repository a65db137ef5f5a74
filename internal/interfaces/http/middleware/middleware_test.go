package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/internal/testutil"
)

func init() { gin.SetMode(gin.TestMode) }

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ─────────────────────────────────────────────────────────────────────────────
// CORS
// ─────────────────────────────────────────────────────────────────────────────

func TestCORS_Preflight(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	r := newEngine(CORS(cfg))
	r.OPTIONS("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodOptions, "/ok", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_SimpleRequest(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	w := serve(newEngine(CORS(cfg)), http.MethodGet, "/ok", map[string]string{"Origin": "https://APP.example.com"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://APP.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, HeaderRequestID, w.Header().Get("Access-Control-Expose-Headers"))
	assert.Contains(t, w.Header().Values("Vary"), "Origin")
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	w := serve(newEngine(CORS(cfg)), http.MethodGet, "/ok", map[string]string{"Origin": "https://evil.test"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_NoOrigin(t *testing.T) {
	w := serve(newEngine(CORS(DefaultCORSConfig())), http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Wildcards(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"*.example.com"}
	cfg.AllowWildcard = true
	r := newEngine(CORS(cfg))

	w := serve(r, http.MethodGet, "/ok", map[string]string{"Origin": "https://lab.example.com"})
	assert.Equal(t, "https://lab.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/ok", map[string]string{"Origin": "https://example.org"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_AllowAll(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"*"}
	w := serve(newEngine(CORS(cfg)), http.MethodGet, "/ok", map[string]string{"Origin": "https://x.test"})
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	cfg.AllowCredentials = true
	w = serve(newEngine(CORS(cfg)), http.MethodGet, "/ok", map[string]string{"Origin": "https://x.test"})
	assert.Equal(t, "https://x.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Request id
// ─────────────────────────────────────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	var seen string
	var ctxLogger logging.Logger
	r := gin.New()
	r.Use(RequestID(testutil.NewMockLogger()))
	r.GET("/", func(c *gin.Context) {
		seen = GetRequestID(c)
		ctxLogger = logging.FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := serve(r, http.MethodGet, "/", nil)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
	_, isMock := ctxLogger.(*testutil.MockLogger)
	assert.True(t, isMock)
}

func TestRequestID_Propagated(t *testing.T) {
	w := serve(newEngine(RequestID(nil)), http.MethodGet, "/ok", map[string]string{HeaderRequestID: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

// ─────────────────────────────────────────────────────────────────────────────
// Request logging
// ─────────────────────────────────────────────────────────────────────────────

func TestRequestLogging_Levels(t *testing.T) {
	log := testutil.NewMockLogger()
	r := newEngine(RequestID(nil), RequestLogging(log, DefaultLoggingConfig(), nil))

	serve(r, http.MethodGet, "/ok", nil)
	serve(r, http.MethodGet, "/bad", nil)
	serve(r, http.MethodGet, "/boom", nil)

	assert.True(t, log.HasMessage("info", "HTTP request completed"))
	assert.True(t, log.HasMessage("warn", "HTTP request completed with client error"))
	assert.True(t, log.HasMessage("error", "HTTP request completed with server error"))
}

func TestRequestLogging_SkipPaths(t *testing.T) {
	log := testutil.NewMockLogger()
	r := newEngine(RequestLogging(log, DefaultLoggingConfig(), nil))

	serve(r, http.MethodGet, "/healthz", nil)
	assert.Empty(t, log.GetMessages())
}

func TestRequestLogging_Slow(t *testing.T) {
	log := testutil.NewMockLogger()
	cfg := DefaultLoggingConfig()
	cfg.SlowThreshold = 1
	r := newEngine(RequestLogging(log, cfg, nil))

	serve(r, http.MethodGet, "/ok", nil)
	assert.True(t, log.HasMessage("warn", "HTTP request completed (slow)"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Rate limiting
// ─────────────────────────────────────────────────────────────────────────────

func frozenLimiter(cfg RateLimitConfig) (*RateLimiter, *time.Time) {
	l := NewRateLimiter(cfg)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestRateLimiter_Allow(t *testing.T) {
	l, now := frozenLimiter(RateLimitConfig{RequestsPerSecond: 2, Burst: 2})

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
	ok, wait := l.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	ok, _ = l.Allow("b")
	assert.True(t, ok, "buckets are per key")

	*now = now.Add(500 * time.Millisecond)
	ok, _ = l.Allow("a")
	assert.True(t, ok)
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	l, now := frozenLimiter(RateLimitConfig{RequestsPerSecond: 1, IdleTTL: time.Minute})
	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	*now = now.Add(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 2.5})
	assert.Equal(t, 3, l.cfg.Burst)
	assert.Equal(t, 10*time.Minute, l.cfg.IdleTTL)

	l = NewRateLimiter(RateLimitConfig{})
	assert.Equal(t, DefaultRateLimitConfig().RequestsPerSecond, l.cfg.RequestsPerSecond)
}

func TestRateLimit_Middleware(t *testing.T) {
	l, _ := frozenLimiter(RateLimitConfig{RequestsPerSecond: 0.5, Burst: 1, SkipPaths: []string{"/healthz"}})
	r := newEngine(RateLimit(l))

	w := serve(r, http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = serve(r, http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":"COMMON_007","message":"too many requests"}`, w.Body.String())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/healthz", nil).Code)
	}
}
