package dialog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aicache "github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/cache"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
	"github.com/vosarsen/ai-admin-v2-sub004/store"
	storecache "github.com/vosarsen/ai-admin-v2-sub004/store/cache"
	teststore "github.com/vosarsen/ai-admin-v2-sub004/store/test"
)

const (
	testPhone   = "79001234567"
	testCompany = 962302
)

type mockLoader struct {
	mu    sync.Mutex
	calls map[string]int
	errs  map[string]error

	services []*catalog.Service
	client   *catalog.Client
}

func newMockLoader() *mockLoader {
	return &mockLoader{
		calls: make(map[string]int),
		errs:  make(map[string]error),
		services: []*catalog.Service{
			{ID: 1, Title: "Маникюр", BookingCount: 3},
			{ID: 2, Title: "Мужская стрижка", Category: "Стрижки", BookingCount: 2},
			{ID: 3, Title: "Окрашивание", BookingCount: 1},
		},
	}
}

func (m *mockLoader) enter(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
	return m.errs[name]
}

func (m *mockLoader) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockLoader) LoadCompany(_ context.Context, companyID int) (*catalog.Company, error) {
	if err := m.enter("company"); err != nil {
		return nil, err
	}
	return &catalog.Company{ID: companyID, Title: "Salon", Timezone: "UTC"}, nil
}

func (m *mockLoader) LoadServices(context.Context, int) ([]*catalog.Service, error) {
	if err := m.enter("services"); err != nil {
		return nil, err
	}
	out := make([]*catalog.Service, 0, len(m.services))
	for _, s := range m.services {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *mockLoader) LoadStaff(context.Context, int) ([]*catalog.Staff, error) {
	if err := m.enter("staff"); err != nil {
		return nil, err
	}
	return []*catalog.Staff{{ID: 1, Name: "Алексей", ServiceIDs: []int{2}, Bookable: true}}, nil
}

func (m *mockLoader) LoadStaffSchedules(context.Context, int, time.Time, time.Time) ([]*catalog.StaffSchedule, error) {
	return nil, m.enter("schedules")
}

func (m *mockLoader) LoadBusinessStats(context.Context, int) (*catalog.BusinessStats, error) {
	if err := m.enter("stats"); err != nil {
		return nil, err
	}
	return &catalog.BusinessStats{BookingsToday: 4, LoadPercent: 40}, nil
}

func (m *mockLoader) FindClient(context.Context, int, string) (*catalog.Client, error) {
	if err := m.enter("client"); err != nil {
		return nil, err
	}
	return m.client, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store    *store.Store
	loader   *mockLoader
	clock    *testClock
	exporter *metrics.Exporter
	manager  *Manager
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    teststore.NewTestingStore(context.Background(), t),
		loader:   newMockLoader(),
		clock:    &testClock{now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		exporter: metrics.NewExporter(prometheus.NewRegistry()),
	}
	opts = append([]Option{WithClock(f.clock.Now), WithExporter(f.exporter)}, opts...)
	f.manager = NewManager(f.store, f.loader, opts...)
	return f
}

func (f *fixture) loads(tier string) float64 {
	return testutil.ToFloat64(f.exporter.ContextLoads.WithLabelValues(tier))
}

func TestLoadFullContext_ColdThenMemory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c, err := f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	assert.Equal(t, "Salon", c.Company.Title)
	assert.Len(t, c.Staff, 1)
	assert.Equal(t, store.DialogStateIdle, c.DialogState)
	assert.Equal(t, 4, c.BusinessStats.BookingsToday)
	assert.Equal(t, 1, f.loader.count("company"))

	f.clock.Advance(4 * time.Minute)
	_, err = f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	assert.Equal(t, 1, f.loader.count("company"), "fresh memory entry is reused")
	assert.Equal(t, float64(1), f.loads("cold"))
	assert.Equal(t, float64(1), f.loads("memory"))
}

func TestLoadFullContext_StaleEntryIsReloaded(t *testing.T) {
	ctx := context.Background()
	l1 := aicache.NewLRUCache[*Context](10, time.Hour)
	f := newFixture(t, WithCache(storecache.NewTiered(l1, nil, 0, nil)))

	_, err := f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)

	// The LRU would still serve it; the freshness window must not.
	f.clock.Advance(5*time.Minute + time.Second)
	_, err = f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	assert.Equal(t, 2, f.loader.count("company"))
	assert.Equal(t, float64(2), f.loads("cold"))
}

func TestLoadFullContext_SharedTierBackfillsMemory(t *testing.T) {
	ctx := context.Background()
	shared, err := storecache.OpenBadgerCache(storecache.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shared.Close() })

	newTiered := func() *storecache.Tiered[*Context] {
		return storecache.NewTiered(aicache.NewLRUCache[*Context](10, time.Hour), shared, time.Hour, nil)
	}
	first := newFixture(t, WithCache(newTiered()))
	_, err = first.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)

	// A second process shares the external tier only.
	second := newFixture(t, WithCache(newTiered()))
	c, err := second.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	assert.Equal(t, "Salon", c.Company.Title)
	assert.Zero(t, second.loader.count("company"))
	assert.Equal(t, float64(1), second.loads("shared"))

	_, err = second.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	assert.Equal(t, float64(1), second.loads("memory"))
}

func TestLoadFullContext_Degradation(t *testing.T) {
	ctx := context.Background()

	t.Run("OptionalPartsMayFail", func(t *testing.T) {
		f := newFixture(t)
		f.loader.errs["staff"] = errors.New("staff api down")
		f.loader.errs["client"] = errors.New("client api down")

		c, err := f.manager.LoadFullContext(ctx, testPhone, testCompany)
		require.NoError(t, err)
		assert.Empty(t, c.Staff)
		assert.Nil(t, c.Client)
		assert.Len(t, c.Services, 3)
	})

	t.Run("CompanyIsRequired", func(t *testing.T) {
		f := newFixture(t)
		f.loader.errs["company"] = errors.New("company api down")

		_, err := f.manager.LoadFullContext(ctx, testPhone, testCompany)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load company")
	})
}

func TestSaveContext_IsFieldScoped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	name := "Мария"

	require.NoError(t, f.manager.SaveContext(ctx, testPhone, testCompany, &Update{ClientName: &name}))
	require.NoError(t, f.manager.SavePreferences(ctx, testPhone, testCompany, map[string]any{"language": "ru"}))

	require.NoError(t, f.manager.SaveContext(ctx, testPhone, testCompany, &Update{Selection: &Selection{Service: "X"}}))
	require.NoError(t, f.manager.SaveContext(ctx, testPhone, testCompany, &Update{Selection: &Selection{Staff: "Алексей"}}))

	c, err := f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	assert.Equal(t, "Мария", c.ClientName)
	assert.Equal(t, map[string]any{"language": "ru"}, c.Preferences)
	assert.Equal(t, Selection{Service: "X", Staff: "Алексей"}, c.Selection)
}

func TestSaveContext_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)

	state := store.DialogStateActive
	require.NoError(t, f.manager.SaveContext(ctx, testPhone, testCompany, &Update{
		DialogState: &state,
		Messages: []Message{
			{Role: string(store.ConversationMessageRoleUser), Content: "Привет"},
			{Role: string(store.ConversationMessageRoleAssistant), Content: "Здравствуйте!"},
		},
	}))

	c, err := f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	assert.Equal(t, 2, f.loader.count("company"))
	assert.Equal(t, store.DialogStateActive, c.DialogState)
	require.Len(t, c.History, 2)
	assert.Equal(t, "Привет", c.History[0].Content)
}

func TestProcessingMarker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.manager.SetProcessingMarker(ctx, testPhone, testCompany, "msg-1"))
	c, err := f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	require.NotNil(t, c.ProcessingMarker)
	assert.Equal(t, "msg-1", c.ProcessingMarker.MessageID)

	require.NoError(t, f.manager.ClearProcessingMarker(ctx, testPhone, testCompany))
	require.NoError(t, f.manager.InvalidateCache(ctx, testPhone, testCompany))
	c, err = f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	assert.Nil(t, c.ProcessingMarker)
}

func TestExecutionContext(t *testing.T) {
	f := newFixture(t)
	c, err := f.manager.LoadFullContext(context.Background(), testPhone, testCompany)
	require.NoError(t, err)

	ec := c.ExecutionContext(f.clock.Now())
	assert.Equal(t, testPhone, ec.Phone)
	assert.Equal(t, testCompany, ec.CompanyID)
	assert.Same(t, c.Company, ec.Company)
	assert.Equal(t, f.clock.Now(), ec.Now)
}
