package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"labattend/internal/clock"
)

func init() { gin.SetMode(gin.TestMode) }

func TestTokenBucketRefills(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	l := NewTokenBucket(2, 60, clk)

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("keys are independent")
	}
	clk.Advance(time.Second)
	if !l.Allow("a") {
		t.Fatal("one token per second at 60/min")
	}
	if l.Allow("a") {
		t.Fatal("only one token refilled")
	}
}

func TestMiddlewareLimitsAndLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	clk := clock.NewFake(time.Now())

	r := gin.New()
	r.Use(RequestLogger(zap.New(core), "/healthz"), SecurityHeaders(), NewTokenBucket(1, 1, clk).Middleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}
	if w := do("/healthz"); w.Code != http.StatusOK || w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("first = %d %v", w.Code, w.Header())
	}
	if w := do("/v1/x"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d", w.Code)
	}
	if n := logs.FilterMessage("client error").Len(); n != 1 {
		t.Fatalf("client error logs = %d", n)
	}
	if n := logs.FilterField(zap.String("path", "/healthz")).Len(); n != 0 {
		t.Fatalf("skipped path logged %d times", n)
	}
}

func TestZeroRateDisablesLimiter(t *testing.T) {
	r := gin.New()
	r.Use(NewTokenBucket(0, 0, nil).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
}
