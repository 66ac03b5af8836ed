package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/assistant"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
	aicache "github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/cache"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
	aierrors "github.com/vosarsen/ai-admin-v2-sub004/server/internal/errors"
)

type fakeHandler struct {
	reply *assistant.Reply
	err   error
	got   []assistant.Inbound
}

func (f *fakeHandler) HandleMessage(_ context.Context, in assistant.Inbound) (*assistant.Reply, error) {
	f.got = append(f.got, in)
	return f.reply, f.err
}

type fakeCache struct{}

func (fakeCache) CacheStats() aicache.Stats {
	return aicache.Stats{Hits: 3, Misses: 1, Size: 2, MaxSize: 1000, HitRate: 0.75}
}

func newTestServer(t *testing.T, h MessageHandler) (*echo.Echo, *APIV1Service) {
	t.Helper()
	reg := prometheus.NewRegistry()
	exporter := metrics.NewExporter(reg)
	m := metrics.NewService(nil, metrics.PersisterConfig{}, metrics.WithExporter(exporter))

	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	breakers.Get("yclients")

	s := NewAPIV1Service(h, breakers, fakeCache{}, m)
	s.Gatherer = reg
	e := echo.New()
	s.RegisterRoutes(e)
	return e, s
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPostMessage(t *testing.T) {
	h := &fakeHandler{reply: &assistant.Reply{Text: "Готово"}}
	e, _ := newTestServer(t, h)

	rec := do(e, http.MethodPost, "/api/v1/messages", `{"phone":"79001234567","company_id":962302,"text":"Привет"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reply assistant.Reply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "Готово", reply.Text)
	require.Len(t, h.got, 1)
	assert.Equal(t, assistant.Inbound{Phone: "79001234567", CompanyID: 962302, Text: "Привет"}, h.got[0])
}

func TestPostMessage_Validation(t *testing.T) {
	h := &fakeHandler{reply: &assistant.Reply{}}
	e, _ := newTestServer(t, h)

	for _, body := range []string{
		`{"phone":"abc","company_id":1,"text":"hi"}`,
		`{"phone":"79001234567","company_id":0,"text":"hi"}`,
		`{"phone":"79001234567","company_id":1,"text":""}`,
		`{not json`,
	} {
		rec := do(e, http.MethodPost, "/api/v1/messages", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, aierrors.ErrCodeInvalidArgument, resp.Code)
	}
	assert.Empty(t, h.got)
}

func TestPostMessage_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		reply  *assistant.Reply
		err    error
		status int
	}{
		{"rate limited reply", &assistant.Reply{Text: "позже", RateLimited: true}, nil, http.StatusTooManyRequests},
		{"breaker open", nil, errors.Wrap(&breaker.OpenError{Name: "yclients", RetryAt: time.Now()}, "load context"), http.StatusServiceUnavailable},
		{"internal", nil, errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestServer(t, &fakeHandler{reply: tt.reply, err: tt.err})
			rec := do(e, http.MethodPost, "/api/v1/messages", `{"phone":"79001234567","company_id":1,"text":"hi"}`)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	e, s := newTestServer(t, nil)
	s.Version = "1.2.3"

	rec := do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"version":"1.2.3"`)

	s.Ping = func(context.Context) error { return errors.New("database is locked") }
	rec = do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestStatusEndpoints(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := do(e, http.MethodGet, "/api/v1/status/breakers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var breakers struct {
		Breakers []breaker.Status `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &breakers))
	require.Len(t, breakers.Breakers, 1)
	assert.Equal(t, "yclients", breakers.Breakers[0].Name)
	assert.Equal(t, "CLOSED", breakers.Breakers[0].State)

	rec = do(e, http.MethodGet, "/api/v1/status/cache", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats aicache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.Hits)
	assert.InDelta(t, 0.75, stats.HitRate, 0.001)
}

func TestGetStats(t *testing.T) {
	e, s := newTestServer(t, nil)
	s.Metrics.RecordCommand(context.Background(), "CREATE_BOOKING", 120*time.Millisecond, true)
	s.Metrics.RecordCommand(context.Background(), "CREATE_BOOKING", 80*time.Millisecond, false)

	rec := do(e, http.MethodGet, "/api/v1/stats?range=1h", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1h", resp.TimeRange)
	assert.Equal(t, int64(2), resp.Stats.RequestCount)
	assert.Equal(t, int64(1), resp.Stats.Commands["CREATE_BOOKING"].Failures)

	rec = do(e, http.MethodGet, "/api/v1/stats?range=2w", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e, s := newTestServer(t, nil)
	s.Metrics.RecordOperation(context.Background(), "booking.create", 50*time.Millisecond, true)

	rec := do(e, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="booking.create"`)
}
