package command

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
)

func TestExecute_UnknownCommand(t *testing.T) {
	e := NewExecutor()

	res := e.Execute(context.Background(), Command{Name: "DANCE"}, testContext())
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, ErrUnknownCommand, res.Error)
	assert.Equal(t, "DANCE", res.Command)
}

func TestExecute_PanicBecomesFailedResult(t *testing.T) {
	e := NewExecutor()
	e.Register("BOOM", func(context.Context, Command, *ExecutionContext) (*Result, error) {
		panic("kaboom")
	}, false)

	res := e.Execute(context.Background(), Command{Name: "BOOM"}, testContext())
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "kaboom")
}

func TestExecute_NilResultIsSuccess(t *testing.T) {
	e := NewExecutor()
	e.Register("NOOP", func(context.Context, Command, *ExecutionContext) (*Result, error) {
		return nil, nil
	}, false)

	res := e.Execute(context.Background(), Command{Name: "NOOP"}, testContext())
	assert.True(t, res.Success)
	assert.Equal(t, "NOOP", res.Command)
}

func TestExecuteMultiple_CriticalFailureStopsBatch(t *testing.T) {
	fb := &fakeBooking{}
	e := NewExecutor()
	RegisterDefaults(e, &Handlers{Booking: fb})

	cmds := []Command{
		{Name: ShowPrices},
		{Name: CreateBooking, Params: map[string]string{"staff_id": "1"}},
		{Name: SearchServices},
	}
	results := e.ExecuteMultiple(context.Background(), cmds, testContext())

	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.True(t, errors.Is(results[1].Err, ErrValidation))
	assert.Empty(t, fb.creates, "booking api must not be called with incomplete input")
}

func TestExecuteMultiple_NonCriticalFailureContinues(t *testing.T) {
	e := NewExecutor()
	RegisterDefaults(e, &Handlers{Booking: &fakeBooking{}})

	cmds := []Command{
		{Name: ShowStaffInfo, Params: map[string]string{"staff_name": "Nobody"}},
		{Name: ShowPrices},
		{Name: "DANCE"},
		{Name: SearchServices},
	}
	results := e.ExecuteMultiple(context.Background(), cmds, testContext())

	require.Len(t, results, 4)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.False(t, results[2].Success)
	assert.True(t, results[3].Success)
}

func TestExecute_RecordsCommandMetrics(t *testing.T) {
	m := metrics.NewMockMetricsService()
	e := NewExecutor(WithMetrics(m))
	RegisterDefaults(e, &Handlers{Booking: &fakeBooking{}})

	e.Execute(context.Background(), Command{Name: ShowPrices}, testContext())
	e.Execute(context.Background(), Command{Name: CancelBooking}, testContext())

	samples := m.Samples(metrics.KindCommand)
	require.Len(t, samples, 2)
	assert.Equal(t, ShowPrices, samples[0].Name)
	assert.True(t, samples[0].Success)
	assert.Equal(t, CancelBooking, samples[1].Name)
	assert.False(t, samples[1].Success)
}

func TestIsCritical(t *testing.T) {
	e := NewExecutor()
	RegisterDefaults(e, &Handlers{})

	for _, name := range []string{CreateBooking, CancelBooking, RescheduleBooking, ConfirmBooking, MarkNoShow} {
		assert.True(t, e.IsCritical(name), name)
	}
	for _, name := range []string{SearchSlots, ShowPrices, SearchServices, SearchStaff, ShowStaffInfo, ShowBookings, SavePreferences} {
		assert.False(t, e.IsCritical(name), name)
	}
}
