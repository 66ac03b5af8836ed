// Package timeout defines centralized timeout constants for the assistant pipeline.
package timeout

import "time"

// Assistant pipeline timeout constants.
const (
	// MessageTimeout bounds the processing of one inbound message end to end.
	MessageTimeout = 2 * time.Minute

	// GenerationTimeout is the timeout for one completion from the LLM.
	GenerationTimeout = 60 * time.Second

	// ColdLoadTimeout bounds the parallel catalog load of a cold context.
	ColdLoadTimeout = 15 * time.Second

	// ContextFreshness is the maximum age of a cached context before it is reloaded.
	ContextFreshness = 5 * time.Minute

	// SharedCacheTTL is the TTL of contexts in the shared cache tier.
	SharedCacheTTL = 30 * time.Minute

	// CatalogTTL is how long company, service and staff lists are reused across clients.
	CatalogTTL = 10 * time.Minute

	// PendingActionTTL discards a pending question the client never answered.
	PendingActionTTL = 30 * time.Minute

	// ProcessingMarkerTTL is how long a processing marker counts as in flight.
	ProcessingMarkerTTL = 2 * time.Minute

	// BookingCallTimeout is the breaker timeout of one booking API call.
	BookingCallTimeout = 10 * time.Second

	// BookingResetTimeout is how long the booking breaker stays open.
	BookingResetTimeout = 60 * time.Second

	// ShutdownTimeout bounds graceful server shutdown.
	ShutdownTimeout = 10 * time.Second

	// HistoryWindow is the number of recent messages kept in a context.
	HistoryWindow = 20

	// ScheduleDays is how many days of staff schedules a context carries.
	ScheduleDays = 7
)
