package system

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"go-kpi/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockPinger struct {
	err error
}

func (m *MockPinger) Ping(ctx context.Context) error { return m.err }

func get(t *testing.T, app *fiber.App, url string) (int, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", url, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthApi(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		url        string
		wantStatus int
		wantBody   string
	}{
		{name: "liveness ignores search", pingErr: errors.New("down"), url: "/health", wantStatus: fiber.StatusOK, wantBody: "OK"},
		{name: "ready", url: "/health/ready", wantStatus: fiber.StatusOK, wantBody: "OK"},
		{name: "not ready", pingErr: errors.New("down"), url: "/health/ready", wantStatus: fiber.StatusServiceUnavailable, wantBody: "search unavailable: down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			NewHealthApi(&MockPinger{err: tt.pingErr}).Setup(app)

			status, body := get(t, app, tt.url)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestMetricsApi(t *testing.T) {
	collector := metrics.NewCollector()
	collector.ObserveLoad("revenue", 20*time.Millisecond, 3, nil)

	app := fiber.New()
	NewMetricsApi(collector).Setup(app)

	status, body := get(t, app, "/metrics")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `kpi_loads_total{kpi="revenue",outcome="success"} 1`)
	assert.Contains(t, body, `kpi_cells_loaded_total{kpi="revenue"} 3`)
}
