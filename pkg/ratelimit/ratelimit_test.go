package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestWindowKeyStableWithinWindow(t *testing.T) {
	window := time.Minute
	base := time.Date(2024, 6, 1, 12, 0, 5, 0, time.UTC)

	k1 := WindowKey("10.0.0.1", base, window)
	k2 := WindowKey("10.0.0.1", base.Add(30*time.Second), window)
	k3 := WindowKey("10.0.0.1", base.Add(2*time.Minute), window)

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestWindowKeySeparatesClients(t *testing.T) {
	now := time.Now()
	assert.NotEqual(t,
		WindowKey("10.0.0.1", now, time.Minute),
		WindowKey("10.0.0.2", now, time.Minute))
}

func TestMiddlewareFailsOpenWithoutRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", New(nil, 1, time.Minute).Middleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
