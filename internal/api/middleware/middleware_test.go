package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

func serve(router *gin.Engine, method, remote string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/test", nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(DefaultCORSConfig()))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	tests := []struct {
		name           string
		method         string
		headers        map[string]string
		wantStatus     int
		wantCORSHeader bool
	}{
		{
			name:           "simple GET request with origin",
			method:         "GET",
			headers:        map[string]string{"Origin": "http://localhost:3000"},
			wantStatus:     http.StatusOK,
			wantCORSHeader: true,
		},
		{
			name:   "preflight OPTIONS request",
			method: "OPTIONS",
			headers: map[string]string{
				"Origin":                        "http://localhost:3000",
				"Access-Control-Request-Method": "GET",
			},
			wantStatus:     http.StatusNoContent,
			wantCORSHeader: true,
		},
		{
			name:           "no origin header",
			method:         "GET",
			wantStatus:     http.StatusOK,
			wantCORSHeader: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, "", tt.headers)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCORSHeader {
				assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORSRestrictedOrigin(t *testing.T) {
	router := setupTestRouter()
	router.Use(CORS(CORSConfig{
		AllowOrigins: []string{"https://dash.example.com"},
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Accept"},
		MaxAge:       time.Hour,
	}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	allowed := serve(router, "GET", "", map[string]string{"Origin": "https://dash.example.com"})
	assert.Equal(t, http.StatusOK, allowed.Code)
	assert.Equal(t, "https://dash.example.com", allowed.Header().Get("Access-Control-Allow-Origin"))

	denied := serve(router, "GET", "", map[string]string{"Origin": "https://other.example.com"})
	assert.Equal(t, http.StatusForbidden, denied.Code)
}

func TestRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	// Burst capacity
	for i := 0; i < 2; i++ {
		w := serve(router, "GET", "192.168.1.1:1234", nil)
		assert.Equal(t, http.StatusOK, w.Code, "Request %d should succeed", i+1)
	}

	w := serve(router, "GET", "192.168.1.1:1234", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimitDifferentClients(t *testing.T) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(router, "GET", "192.168.1.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, serve(router, "GET", "192.168.1.2:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "GET", "192.168.1.1:1234", nil).Code)
}

func TestGlobalRateLimit(t *testing.T) {
	router := setupTestRouter()
	router.Use(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 2, Burst: 2}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(router, "GET", "192.168.1.1:1234", nil).Code)
	assert.Equal(t, http.StatusOK, serve(router, "GET", "192.168.1.2:1234", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, "GET", "192.168.1.3:1234", nil).Code)
}

func TestLimiterSetForgetsIdleClients(t *testing.T) {
	now := time.Unix(1000, 0)
	set := newLimiterSet(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		IdleTimeout:       time.Minute,
	}, func() time.Time { return now })

	first := set.get("10.0.0.1")
	set.get("10.0.0.2")
	assert.Equal(t, 2, set.len())
	assert.Same(t, first, set.get("10.0.0.1"))

	now = now.Add(30 * time.Second)
	set.get("10.0.0.1")

	now = now.Add(40 * time.Second)
	set.get("10.0.0.3")

	// 10.0.0.2 was idle for 70s, 10.0.0.1 for 40s
	assert.Equal(t, 2, set.len())
	assert.Same(t, first, set.get("10.0.0.1"))
}

func TestDefaultConfigs(t *testing.T) {
	cors := DefaultCORSConfig()
	assert.Contains(t, cors.AllowOrigins, "*")
	assert.Equal(t, []string{"GET", "OPTIONS"}, cors.AllowMethods)
	assert.Equal(t, 12*time.Hour, cors.MaxAge)

	limits := DefaultRateLimitConfig()
	assert.Equal(t, 20, limits.RequestsPerSecond)
	assert.Equal(t, 40, limits.Burst)
	assert.Equal(t, 5*time.Minute, limits.IdleTimeout)
}

func BenchmarkRateLimit(b *testing.B) {
	router := setupTestRouter()
	router.Use(RateLimit(RateLimitConfig{RequestsPerSecond: 1e6, Burst: 1e6}))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serve(router, "GET", "192.168.1.1:1234", nil)
	}
}
