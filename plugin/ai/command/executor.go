package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
)

// ErrUnknownCommand is the error text of a command with no registered handler.
const ErrUnknownCommand = "unknown command"

// ErrValidation marks a command rejected before any downstream call.
var ErrValidation = errors.New("validation failed")

func validationError(format string, args ...any) error {
	return errors.Wrap(ErrValidation, fmt.Sprintf(format, args...))
}

// Handler executes one command. A returned error becomes a failed Result.
type Handler func(ctx context.Context, cmd Command, ec *ExecutionContext) (*Result, error)

type registration struct {
	handler  Handler
	critical bool
}

// Executor dispatches commands to registered handlers.
type Executor struct {
	mu       sync.RWMutex
	handlers map[string]registration
	metrics  metrics.MetricsService
	logger   *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMetrics records one command sample per execution.
func WithMetrics(m metrics.MetricsService) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// NewExecutor creates an executor with no handlers.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		handlers: make(map[string]registration),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register binds a handler to a command name. Critical commands abort the
// rest of a batch when they fail.
func (e *Executor) Register(name string, h Handler, critical bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = registration{handler: h, critical: critical}
}

// IsCritical reports whether name is registered as critical.
func (e *Executor) IsCritical(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handlers[name].critical
}

// Execute runs one command. It never panics and always returns a Result.
func (e *Executor) Execute(ctx context.Context, cmd Command, ec *ExecutionContext) (result *Result) {
	e.mu.RLock()
	reg, ok := e.handlers[cmd.Name]
	e.mu.RUnlock()
	if !ok {
		e.logger.Warn("unknown command", slog.String("command", cmd.Name))
		return &Result{Command: cmd.Name, Params: cmd.Params, Success: false, Type: TypeError, Error: ErrUnknownCommand}
	}

	done := metrics.Track(ctx, e.metrics, metrics.KindCommand, cmd.Name)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("command handler panicked",
				slog.String("command", cmd.Name),
				slog.Any("panic", r),
			)
			err := errors.Errorf("command %s failed: %v", cmd.Name, r)
			result = failed(cmd, err)
		}
		if result.Success {
			done(nil)
		} else {
			done(errors.New(result.Error))
		}
	}()

	res, err := reg.handler(ctx, cmd, ec)
	if err != nil {
		e.logger.Info("command failed",
			slog.String("command", cmd.Name),
			slog.String("error", err.Error()),
		)
		return failed(cmd, err)
	}
	if res == nil {
		res = &Result{Success: true}
	}
	res.Command = cmd.Name
	res.Params = cmd.Params
	return res
}

// ExecuteMultiple runs commands sequentially in order. After a critical
// command fails no further command runs, so the result slice may be shorter
// than the input.
func (e *Executor) ExecuteMultiple(ctx context.Context, cmds []Command, ec *ExecutionContext) []*Result {
	results := make([]*Result, 0, len(cmds))
	for i, cmd := range cmds {
		res := e.Execute(ctx, cmd, ec)
		results = append(results, res)
		if !res.Success && e.IsCritical(cmd.Name) {
			if skipped := len(cmds) - i - 1; skipped > 0 {
				e.logger.Warn("critical command failed, skipping rest of batch",
					slog.String("command", cmd.Name),
					slog.Int("skipped", skipped),
				)
			}
			break
		}
	}
	return results
}

func failed(cmd Command, err error) *Result {
	return &Result{
		Command: cmd.Name,
		Params:  cmd.Params,
		Success: false,
		Type:    TypeError,
		Error:   err.Error(),
		Err:     err,
	}
}
