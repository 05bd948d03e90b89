package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthReflectsComponents(t *testing.T) {
	RegisterComponent("store", true, "")
	RegisterComponent("runner", true, "")

	health := GetHealth()
	assert.Equal(t, "healthy", health.Status)

	UpdateComponent("runner", false, "pool exhausted")
	health = GetHealth()
	assert.Equal(t, "unhealthy", health.Status)
	assert.Contains(t, health.Components["runner"], "pool exhausted")

	UpdateComponent("runner", true, "")
}

func TestHealthHandler(t *testing.T) {
	RegisterComponent("store", true, "")

	rec := httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status"`)
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), 10*time.Millisecond)
}
