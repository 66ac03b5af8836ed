package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
	aierrors "github.com/vosarsen/ai-admin-v2-sub004/server/internal/errors"
)

// StatsResponse is the metrics summary for a time range.
type StatsResponse struct {
	TimeRange string         `json:"time_range"`
	Start     time.Time      `json:"start"`
	End       time.Time      `json:"end"`
	Stats     *metrics.Stats `json:"stats"`
}

// GetBreakers returns the status of every registered breaker.
// GET /api/v1/status/breakers
func (s *APIV1Service) GetBreakers(c echo.Context) error {
	statuses := []breaker.Status{}
	if s.Breakers != nil {
		statuses = s.Breakers.Statuses()
	}
	return c.JSON(http.StatusOK, map[string]any{"breakers": statuses})
}

// GetCacheStats returns the context cache counters.
// GET /api/v1/status/cache
func (s *APIV1Service) GetCacheStats(c echo.Context) error {
	if s.Contexts == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: aierrors.ErrCodeServiceUnavailable, Message: "context cache is not configured"})
	}
	return c.JSON(http.StatusOK, s.Contexts.CacheStats())
}

// GetStats returns aggregated operation and command metrics.
// GET /api/v1/stats?range=1h|24h|7d|30d
func (s *APIV1Service) GetStats(c echo.Context) error {
	timeRange := c.QueryParam("range")
	if timeRange == "" {
		timeRange = "24h"
	}
	now := s.now()
	start, err := parseTimeRange(timeRange, now)
	if err != nil {
		slog.Warn("Invalid time range parameter in stats request", "range", timeRange, "error", err)
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: aierrors.ErrCodeInvalidArgument, Message: err.Error()})
	}
	if s.Metrics == nil {
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: aierrors.ErrCodeServiceUnavailable, Message: "metrics are not configured"})
	}

	stats, err := s.Metrics.GetStats(c.Request().Context(), metrics.TimeRange{Start: start, End: now})
	if err != nil {
		s.Logger.Error("failed to load stats", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Code: aierrors.ErrCodeInternal, Message: "failed to load stats"})
	}
	return c.JSON(http.StatusOK, StatsResponse{TimeRange: timeRange, Start: start, End: now, Stats: stats})
}

// parseTimeRange parses time range string and returns the start time
func parseTimeRange(timeRange string, now time.Time) (time.Time, error) {
	switch timeRange {
	case "1h":
		return now.Add(-1 * time.Hour), nil
	case "24h":
		return now.Add(-24 * time.Hour), nil
	case "7d":
		return now.Add(-7 * 24 * time.Hour), nil
	case "30d":
		return now.Add(-30 * 24 * time.Hour), nil
	default:
		return time.Time{}, errors.Errorf("invalid time range: %s (valid: 1h, 24h, 7d, 30d)", timeRange)
	}
}
