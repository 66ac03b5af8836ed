package assistant

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

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/command"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/dialog"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/ratelimit"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/response"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/booking"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
	"github.com/vosarsen/ai-admin-v2-sub004/store"
	teststore "github.com/vosarsen/ai-admin-v2-sub004/store/test"
)

const (
	testPhone   = "79001234567"
	testCompany = 962302
)

var testNow = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type staticLoader struct{}

func (staticLoader) LoadCompany(_ context.Context, companyID int) (*catalog.Company, error) {
	return &catalog.Company{ID: companyID, Title: "Barbershop", Timezone: "UTC", Phone: "+79990000000"}, nil
}

func (staticLoader) LoadServices(context.Context, int) ([]*catalog.Service, error) {
	return []*catalog.Service{
		{ID: 1, Title: "Маникюр", PriceMin: 1500, PriceMax: 2000, Bookable: true},
		{ID: 2, Title: "Мужская стрижка", Category: "Стрижки", PriceMin: 1200, PriceMax: 1200, StaffIDs: []int{1}, Bookable: true},
	}, nil
}

func (staticLoader) LoadStaff(context.Context, int) ([]*catalog.Staff, error) {
	return []*catalog.Staff{{ID: 1, Name: "Алексей", ServiceIDs: []int{2}, Bookable: true}}, nil
}

func (staticLoader) LoadStaffSchedules(context.Context, int, time.Time, time.Time) ([]*catalog.StaffSchedule, error) {
	return nil, nil
}

func (staticLoader) LoadBusinessStats(context.Context, int) (*catalog.BusinessStats, error) {
	return &catalog.BusinessStats{}, nil
}

func (staticLoader) FindClient(context.Context, int, string) (*catalog.Client, error) {
	return nil, nil
}

// scriptedGenerator returns queued replies and records what it was asked.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]Message
}

func (g *scriptedGenerator) Generate(_ context.Context, messages []Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, messages)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return "Чем могу помочь?", nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fixture struct {
	store     *store.Store
	client    *booking.MockClient
	manager   *dialog.Manager
	processor *response.Processor
	generator *scriptedGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:     teststore.NewTestingStore(ctx, t),
		client:    booking.NewMockClient(),
		generator: &scriptedGenerator{},
	}
	clock := func() time.Time { return testNow }
	f.manager = dialog.NewManager(f.store, staticLoader{}, dialog.WithClock(clock))

	svc := booking.NewService(f.client, f.store, booking.WithRetry(booking.RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  2,
	}))
	e := command.NewExecutor()
	command.RegisterDefaults(e, &command.Handlers{Booking: svc, Preferences: f.manager})
	f.processor = response.NewProcessor(e)
	return f
}

func (f *fixture) pipeline(opts ...Option) *Pipeline {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewPipeline(f.manager, f.generator, f.processor, opts...)
}

func (f *fixture) history(t *testing.T) []*store.ConversationMessage {
	t.Helper()
	list, err := f.store.ListConversationMessages(context.Background(), &store.FindConversationMessage{
		Phone:     testPhone,
		CompanyID: testCompany,
		Limit:     50,
	})
	require.NoError(t, err)
	return list
}

func TestHandleMessage_CreatesBooking(t *testing.T) {
	f := newFixture(t)
	f.client.NextID = 122
	f.client.Slots = []booking.Slot{{Datetime: time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC), StaffID: 1}}
	f.generator.replies = []string{
		`Отлично, записала вас к Алексею на завтра в 14:00! [CREATE_BOOKING service_id: 2, staff_id: 1, datetime: "2024-01-02 14:00"]`,
	}
	ctx := context.Background()

	reply, err := f.pipeline().HandleMessage(ctx, Inbound{
		Phone:     testPhone,
		CompanyID: testCompany,
		Text:      "на стрижку к Алексею завтра в 14:00",
	})
	require.NoError(t, err)

	assert.Equal(t, "Отлично, записала вас к Алексею на завтра в 14:00!", reply.Text)
	require.Len(t, reply.Results, 1)
	require.True(t, reply.Results[0].Success, reply.Results[0].Error)
	assert.Equal(t, int64(123), reply.Results[0].Data.(command.BookingData).RecordID)
	require.Len(t, f.client.CreateRequests, 1)
	assert.Equal(t, []int{2}, f.client.CreateRequests[0].ServiceIDs)

	// The generator saw the catalog and the client text last.
	require.Equal(t, 1, f.generator.callCount())
	sent := f.generator.calls[0]
	assert.Equal(t, RoleSystem, sent[0].Role)
	assert.Contains(t, sent[0].Content, "2: Мужская стрижка")
	assert.Equal(t, Message{Role: RoleUser, Content: "на стрижку к Алексею завтра в 14:00"}, sent[len(sent)-1])

	owner, err := f.store.GetBookingOwnership(ctx, 123, testCompany)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, testPhone, owner.Phone)

	c, err := f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	assert.True(t, c.Selection.IsEmpty(), "dialog is cleared after booking")
	assert.Nil(t, c.ProcessingMarker)
	assert.EqualValues(t, 1, c.Preferences[dialog.PrefFavoriteStaffID])
	assert.EqualValues(t, 2, c.Preferences[dialog.PrefFavoriteServiceID])

	history := f.history(t)
	require.Len(t, history, 2)
	assert.Equal(t, store.ConversationMessageRoleUser, history[0].Role)
	assert.Equal(t, store.ConversationMessageRoleAssistant, history[1].Role)
	assert.NotContains(t, history[1].Content, "CREATE_BOOKING")
}

func TestHandleMessage_PendingCancelSelection(t *testing.T) {
	f := newFixture(t)
	f.client.Records = []*booking.Record{
		{ID: 501, CompanyID: testCompany, Phone: testPhone, Datetime: time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), ServiceIDs: []int{1}, ServiceTitles: []string{"Маникюр"}},
		{ID: 502, CompanyID: testCompany, Phone: testPhone, Datetime: time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC), ServiceIDs: []int{2}, ServiceTitles: []string{"Мужская стрижка"}, StaffID: 1, StaffName: "Алексей"},
	}
	f.generator.replies = []string{"Какую запись отменить? [SHOW_BOOKINGS intent: cancel]"}
	p := f.pipeline()
	ctx := context.Background()

	first, err := p.HandleMessage(ctx, Inbound{Phone: testPhone, CompanyID: testCompany, Text: "хочу отменить запись"})
	require.NoError(t, err)
	assert.Contains(t, first.Text, "1. 03.01 12:00 Маникюр")
	assert.Contains(t, first.Text, "2. 05.01 15:00 Мужская стрижка (Алексей)")

	c, err := f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	require.NotNil(t, c.PendingAction)
	assert.Len(t, c.PendingAction.Options, 2)

	second, err := p.HandleMessage(ctx, Inbound{Phone: testPhone, CompanyID: testCompany, Text: "2"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.generator.callCount(), "numeric reply is resolved without generation")
	assert.Equal(t, f.processor.Messages().Done[command.CancelBooking], second.Text)
	assert.True(t, f.client.Records[1].Deleted)
	assert.False(t, f.client.Records[0].Deleted)

	c, err = f.manager.LoadFullContext(ctx, testPhone, testCompany)
	require.NoError(t, err)
	assert.Nil(t, c.PendingAction)
}

func TestHandleMessage_NonNumericReplyDropsPending(t *testing.T) {
	f := newFixture(t)
	f.client.Records = []*booking.Record{
		{ID: 501, CompanyID: testCompany, Phone: testPhone, Datetime: time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)},
	}
	f.generator.replies = []string{"Какую запись отменить? [SHOW_BOOKINGS intent: cancel]", "Хорошо, оставляем."}
	p := f.pipeline()
	ctx := context.Background()

	_, err := p.HandleMessage(ctx, Inbound{Phone: testPhone, CompanyID: testCompany, Text: "отмени"})
	require.NoError(t, err)
	reply, err := p.HandleMessage(ctx, Inbound{Phone: testPhone, CompanyID: testCompany, Text: "передумал"})
	require.NoError(t, err)

	assert.Equal(t, "Хорошо, оставляем.", reply.Text)
	assert.Equal(t, 2, f.generator.callCount())
	assert.False(t, f.client.Records[0].Deleted)
	assert.Zero(t, f.client.CallCount("CancelBooking"))
}

func TestHandleMessage_RateLimited(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	exporter := metrics.NewExporter(reg)
	limiter := ratelimit.NewComposite(ratelimit.New(ratelimit.Config{
		Name:                  "per_minute",
		Window:                time.Minute,
		MaxRequests:           1,
		BlockDuration:         time.Minute,
		ViolationsBeforeBlock: 10,
	}))
	p := f.pipeline(WithLimiter(limiter), WithExporter(exporter))
	ctx := context.Background()
	in := Inbound{Phone: testPhone, CompanyID: testCompany, Text: "привет"}

	first, err := p.HandleMessage(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.RateLimited)

	second, err := p.HandleMessage(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.RateLimited)
	assert.Equal(t, f.processor.Messages().TryLater, second.Text)
	assert.Equal(t, 1, f.generator.callCount())
	assert.Equal(t, 1.0, testutil.ToFloat64(exporter.RateLimited.WithLabelValues("per_minute", ratelimit.CodeExceeded)))
}

func TestHandleMessage_GeneratorBreaker(t *testing.T) {
	f := newFixture(t)
	f.generator.err = errors.New("upstream 502")
	cb := breaker.New("llm", breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour, HistoryLimit: 10})
	mock := metrics.NewMockMetricsService()
	p := f.pipeline(WithBreaker(cb), WithMetrics(mock))
	ctx := context.Background()
	in := Inbound{Phone: testPhone, CompanyID: testCompany, Text: "привет"}

	_, err := p.HandleMessage(ctx, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 502")
	assert.Equal(t, breaker.Open, cb.State())

	reply, err := p.HandleMessage(ctx, in)
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Equal(t, f.processor.Messages().TryLater, reply.Text)
	assert.Equal(t, 1, f.generator.callCount(), "open breaker short-circuits generation")

	samples := mock.Samples(metrics.KindOperation)
	require.NotEmpty(t, samples)
	names := make(map[string]int)
	for _, s := range samples {
		names[s.Name]++
	}
	assert.Equal(t, 2, names["assistant.generate"])
	assert.Equal(t, 2, names["assistant.handle_message"])
}

func TestHandleMessage_Invalid(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline()

	for _, in := range []Inbound{
		{CompanyID: testCompany, Text: "hi"},
		{Phone: testPhone, Text: "hi"},
		{Phone: testPhone, CompanyID: testCompany, Text: "   "},
	} {
		_, err := p.HandleMessage(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidMessage)
	}
	assert.Zero(t, f.generator.callCount())
}

func TestBuildMessages_History(t *testing.T) {
	c := &dialog.Context{
		Company:  &catalog.Company{Title: "Barbershop", Timezone: "UTC"},
		Services: []*catalog.Service{{ID: 1, Title: "Маникюр", PriceMin: 1500, PriceMax: 2000}},
		History: []dialog.Message{
			{Role: string(store.ConversationMessageRoleUser), Content: "Привет"},
			{Role: string(store.ConversationMessageRoleAssistant), Content: "Здравствуйте!"},
		},
		ClientName: "Иван",
		Selection:  dialog.Selection{Service: "Маникюр", ServiceID: 1, Date: "2024-01-02"},
	}

	messages := BuildMessages(c, "Запишите меня", testNow)
	require.Len(t, messages, 4)
	assert.Equal(t, RoleUser, messages[1].Role)
	assert.Equal(t, RoleAssistant, messages[2].Role)
	assert.Equal(t, "Запишите меня", messages[3].Content)

	prompt := messages[0].Content
	assert.Contains(t, prompt, "«Barbershop»")
	assert.Contains(t, prompt, "2024-01-01 10:00 (понедельник)")
	assert.Contains(t, prompt, "1: Маникюр, 1500–2000 ₽")
	assert.Contains(t, prompt, "Иван, новый клиент.")
	assert.Contains(t, prompt, "услуга Маникюр (id 1); дата 2024-01-02;")
	assert.Contains(t, prompt, "[CREATE_BOOKING")
}
