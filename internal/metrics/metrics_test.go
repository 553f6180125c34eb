package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/legal-bids-backend/pkg/apperr"
)

func TestMiddleware_CountsByRouteAndStatus(t *testing.T) {
	m := New()
	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/cases/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/bids/:id", func(c *fiber.Ctx) error { return apperr.ErrNotFound })
	app.Get("/metrics", m.Handler())

	for _, path := range []string{"/cases/1", "/cases/2", "/bids/9"} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil), -1)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/cases/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/bids/:id", "404")))

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "legalbids_http_requests_total"))
}

func TestRecordRecompute(t *testing.T) {
	m := New()
	m.RecordRecompute("case_bids", nil)
	m.RecordRecompute("case_bids", errors.New("boom"))
	m.RecordRecompute("case_bids", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AggregateRecomputes.WithLabelValues("case_bids", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregateRecomputes.WithLabelValues("case_bids", "failed")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.RecordRecompute("case_bids", nil) })
}
