package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/command"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/dialog"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/ratelimit"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/response"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/timeout"
	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

// ErrInvalidMessage is returned for an inbound message missing phone, company or text.
var ErrInvalidMessage = errors.New("invalid inbound message")

// Inbound is one client message.
type Inbound struct {
	Phone     string `json:"phone"`
	CompanyID int    `json:"company_id"`
	Text      string `json:"text"`
	// MessageID identifies the message in the processing marker. Generated when empty.
	MessageID string `json:"message_id,omitempty"`
}

// Reply is the text to send back plus what was executed.
type Reply struct {
	Text     string            `json:"text"`
	Commands []command.Command `json:"commands,omitempty"`
	Results  []*command.Result `json:"results,omitempty"`
	// RateLimited is set when the message was rejected before processing.
	RateLimited bool `json:"rate_limited,omitempty"`
	// Degraded is set when generation was skipped because a dependency is unavailable.
	Degraded bool `json:"degraded,omitempty"`
}

// Pipeline handles inbound messages end to end.
type Pipeline struct {
	contexts  *dialog.Manager
	generator Generator
	processor *response.Processor

	limiter  *ratelimit.CompositeLimiter
	breaker  *breaker.CircuitBreaker
	metrics  metrics.MetricsService
	exporter *metrics.Exporter
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLimiter rate-limits messages per phone.
func WithLimiter(l *ratelimit.CompositeLimiter) Option {
	return func(p *Pipeline) { p.limiter = l }
}

// WithBreaker guards the generator with cb.
func WithBreaker(cb *breaker.CircuitBreaker) Option {
	return func(p *Pipeline) { p.breaker = cb }
}

// WithMetrics records pipeline operation samples.
func WithMetrics(m metrics.MetricsService) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithExporter counts rate-limit rejections.
func WithExporter(e *metrics.Exporter) Option {
	return func(p *Pipeline) { p.exporter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a pipeline.
func NewPipeline(contexts *dialog.Manager, generator Generator, processor *response.Processor, opts ...Option) *Pipeline {
	p := &Pipeline{
		contexts:  contexts,
		generator: generator,
		processor: processor,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HandleMessage processes one client message and returns the reply to send.
// Rate-limit rejections and an unavailable generator produce a "try later"
// reply instead of an error. Other failures are returned to the caller.
func (p *Pipeline) HandleMessage(ctx context.Context, in Inbound) (reply *Reply, err error) {
	in.Phone = strings.TrimSpace(in.Phone)
	in.Text = strings.TrimSpace(in.Text)
	if in.Phone == "" || in.CompanyID <= 0 || in.Text == "" {
		return nil, errors.Wrap(ErrInvalidMessage, "phone, company_id and text are required")
	}

	if p.limiter != nil {
		if limitErr := p.limiter.CheckLimits(in.Phone); limitErr != nil {
			p.recordRateLimited(limitErr)
			p.logger.Info("message rate limited",
				slog.String("phone", in.Phone),
				slog.String("reason", limitErr.Error()))
			return &Reply{Text: p.processor.Messages().TryLater, RateLimited: true}, nil
		}
	}

	done := metrics.Track(ctx, p.metrics, metrics.KindOperation, "assistant.handle_message")
	defer func() { done(err) }()

	ctx, cancel := context.WithTimeout(ctx, timeout.MessageTimeout)
	defer cancel()

	c, err := p.contexts.LoadFullContext(ctx, in.Phone, in.CompanyID)
	if err != nil {
		return nil, errors.Wrap(err, "load context")
	}

	if c.ProcessingMarker.InFlight(p.now()) {
		p.logger.Info("previous message still in flight",
			slog.String("phone", in.Phone),
			slog.String("message_id", c.ProcessingMarker.MessageID))
	}

	messageID := in.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}
	if markErr := p.contexts.SetProcessingMarker(ctx, in.Phone, in.CompanyID, messageID); markErr != nil {
		p.logger.Warn("failed to set processing marker", slog.String("phone", in.Phone), slog.Any("error", markErr))
	}
	defer func() {
		if clearErr := p.contexts.ClearProcessingMarker(context.WithoutCancel(ctx), in.Phone, in.CompanyID); clearErr != nil {
			p.logger.Warn("failed to clear processing marker", slog.String("phone", in.Phone), slog.Any("error", clearErr))
		}
	}()

	now := p.now()
	p.appendMessage(ctx, in, store.ConversationMessageRoleUser, in.Text, now)

	ec := c.ExecutionContext(now)

	cmd, resolved, err := p.contexts.ResolvePendingAction(ctx, c, in.Text)
	if err != nil {
		p.logger.Warn("failed to resolve pending action", slog.String("phone", in.Phone), slog.Any("error", err))
	}
	if resolved {
		out := p.processor.ProcessPending(ctx, *cmd, ec)
		return p.finish(ctx, in, out, now), nil
	}

	raw, err := p.generate(ctx, BuildMessages(c, in.Text, now))
	if err != nil {
		if !unavailable(err) {
			return nil, errors.Wrap(err, "generate reply")
		}
		p.logger.Warn("generator unavailable", slog.String("phone", in.Phone), slog.Any("error", err))
		text := p.processor.Messages().TryLater
		p.appendMessage(ctx, in, store.ConversationMessageRoleAssistant, text, now)
		return &Reply{Text: text, Degraded: true}, nil
	}

	out := p.processor.ProcessAIResponse(ctx, raw, ec)
	return p.finish(ctx, in, out, now), nil
}

func (p *Pipeline) generate(ctx context.Context, messages []Message) (string, error) {
	done := metrics.Track(ctx, p.metrics, metrics.KindOperation, "assistant.generate")
	var (
		raw string
		err error
	)
	if p.breaker != nil {
		raw, err = breaker.Do(ctx, p.breaker, func(ctx context.Context) (string, error) {
			return p.generator.Generate(ctx, messages)
		})
	} else {
		raw, err = p.generator.Generate(ctx, messages)
	}
	done(err)
	return raw, err
}

// finish stores the reply and the command outcome.
func (p *Pipeline) finish(ctx context.Context, in Inbound, out *response.Output, now time.Time) *Reply {
	p.appendMessage(ctx, in, store.ConversationMessageRoleAssistant, out.Response, now)
	if len(out.Results) > 0 {
		if err := p.contexts.SaveCommandResults(ctx, in.Phone, in.CompanyID, out.Results); err != nil {
			p.logger.Error("failed to save command results",
				slog.String("phone", in.Phone),
				slog.Int("company_id", in.CompanyID),
				slog.Any("error", err))
		}
	}
	return &Reply{
		Text:     out.Response,
		Commands: out.Commands,
		Results:  out.Results,
	}
}

func (p *Pipeline) appendMessage(ctx context.Context, in Inbound, role store.ConversationMessageRole, text string, at time.Time) {
	if text == "" {
		return
	}
	upd := &dialog.Update{Messages: []dialog.Message{{Role: string(role), Content: text, At: at}}}
	if err := p.contexts.SaveContext(ctx, in.Phone, in.CompanyID, upd); err != nil {
		p.logger.Warn("failed to store message",
			slog.String("phone", in.Phone),
			slog.String("role", string(role)),
			slog.Any("error", err))
	}
}

func (p *Pipeline) recordRateLimited(err error) {
	if p.exporter == nil {
		return
	}
	var rle *ratelimit.Error
	if errors.As(err, &rle) {
		p.exporter.RecordRateLimited(rle.Limiter, rle.Code)
		return
	}
	p.exporter.RecordRateLimited("unknown", ratelimit.CodeExceeded)
}

// unavailable reports whether err means the generator is temporarily out of service.
func unavailable(err error) bool {
	return breaker.IsOpen(err) || errors.Is(err, breaker.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
