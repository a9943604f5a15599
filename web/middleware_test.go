package web

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(rate.Limit(1), 3)
	router := gin.New()
	router.Use(RateLimitMiddleware(limiter))
	router.GET("/", func(c *gin.Context) { c.Status(200) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		router.ServeHTTP(w, req)
		if w.Code != 200 {
			t.Errorf("Request %d within burst should pass, got %d", i+1, w.Code)
		}
	}
}

func TestRateLimiterRejectsBeyondBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)

	limiter := NewRateLimiter(rate.Limit(1), 2)
	router := gin.New()
	router.Use(RateLimitMiddleware(limiter))
	router.GET("/", func(c *gin.Context) { c.Status(200) })

	var lastCode int
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		router.ServeHTTP(w, req)
		lastCode = w.Code
	}
	if lastCode != http.StatusTooManyRequests {
		t.Errorf("Requests beyond burst should get 429, got %d", lastCode)
	}
}

func TestRateLimiterTracksIPsSeparately(t *testing.T) {
	limiter := NewRateLimiter(rate.Limit(1), 1)

	if !limiter.getLimiter("10.0.0.1").Allow() {
		t.Error("First request from first IP should pass")
	}
	if limiter.getLimiter("10.0.0.1").Allow() {
		t.Error("Second request from first IP should be limited")
	}
	if !limiter.getLimiter("10.0.0.2").Allow() {
		t.Error("First request from second IP should pass")
	}
}

func TestMaxBytesMiddlewareRejectsLargeBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(MaxBytesMiddleware(10))
	router.POST("/", func(c *gin.Context) { c.Status(200) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 100)))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Oversized body should get 413, got %d", w.Code)
	}
}

func TestMaxBytesMiddlewareAllowsSmallBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(MaxBytesMiddleware(1024))
	router.POST("/", func(c *gin.Context) { c.Status(200) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader("small"))
	router.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Errorf("Small body should pass, got %d", w.Code)
	}
}
