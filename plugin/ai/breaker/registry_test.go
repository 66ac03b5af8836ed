package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SingletonPerName(t *testing.T) {
	r := NewRegistry(DefaultConfig())

	a := r.Get("yclients")
	b := r.Get("yclients", Config{FailureThreshold: 1})
	c := r.Get("llm")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestRegistry_ResetAllAndStatuses(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1, ResetTimeout: time.Minute})

	var opened []string
	r.OnStateChange(func(_, to State, cb *CircuitBreaker) {
		if to == Open {
			opened = append(opened, cb.Name())
		}
	})

	for _, name := range []string{"yclients", "llm"} {
		err := r.Get(name).Execute(context.Background(), failing)
		require.Error(t, err)
	}
	assert.ElementsMatch(t, []string{"yclients", "llm"}, opened)

	statuses := r.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "llm", statuses[0].Name)
	assert.Equal(t, "OPEN", statuses[0].State)

	r.ResetAll()
	for _, s := range r.Statuses() {
		assert.Equal(t, "CLOSED", s.State)
	}
}
