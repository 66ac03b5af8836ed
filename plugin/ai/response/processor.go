package response

import (
	"context"
	"log/slog"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/command"
)

// Output is the processed reply.
type Output struct {
	Response string
	Commands []command.Command
	Results  []*command.Result
	// Pending is the last pending action produced by a result, if any.
	Pending *command.PendingAction
}

// Failed reports whether any command failed.
func (o *Output) Failed() bool {
	for _, r := range o.Results {
		if !r.Success {
			return true
		}
	}
	return false
}

// Processor extracts, executes and reconciles commands in generated text.
type Processor struct {
	parser   command.Parser
	executor *command.Executor
	cleaner  *Cleaner
	messages Messages
	logger   *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithParser replaces the command grammar.
func WithParser(p command.Parser) Option {
	return func(pr *Processor) { pr.parser = p }
}

// WithCleaner replaces the display text cleaner.
func WithCleaner(c *Cleaner) Option {
	return func(pr *Processor) { pr.cleaner = c }
}

// WithMessages replaces the phrase set.
func WithMessages(m Messages) Option {
	return func(pr *Processor) { pr.messages = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(pr *Processor) { pr.logger = l }
}

// NewProcessor creates a processor dispatching to executor.
func NewProcessor(executor *command.Executor, opts ...Option) *Processor {
	p := &Processor{
		parser:   command.BracketParser{},
		executor: executor,
		cleaner:  NewCleaner(),
		messages: DefaultMessages(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Messages returns the phrase set in use.
func (p *Processor) Messages() Messages {
	return p.messages
}

// ProcessAIResponse runs every command in raw in order and returns the
// cleaned reply. Commands never reach the client as text.
func (p *Processor) ProcessAIResponse(ctx context.Context, raw string, ec *command.ExecutionContext) *Output {
	out := &Output{Commands: p.parser.Parse(raw)}
	text := p.cleaner.Clean(p.parser.Strip(raw))

	if len(out.Commands) > 0 {
		out.Results = p.executor.ExecuteMultiple(ctx, out.Commands, ec)
		for _, r := range out.Results {
			if r.Pending != nil {
				out.Pending = r.Pending
			}
		}

		loc := ec.Company.Location()
		if extra := FormatResults(out.Results, loc, p.messages); extra != "" {
			if text != "" {
				text += "\n\n"
			}
			text += extra
		}
		if out.Failed() {
			phone := ""
			if ec.Company != nil {
				phone = ec.Company.Phone
			}
			text = p.cleaner.Clean(Reconcile(text, out.Results, phone, loc, p.messages))
		}

		p.logger.Debug("processed assistant response",
			slog.Int("commands", len(out.Commands)),
			slog.Int("executed", len(out.Results)),
			slog.Bool("failed", out.Failed()),
		)
	}

	out.Response = text
	return out
}

// ProcessPending executes a single command resolved from a pending action.
func (p *Processor) ProcessPending(ctx context.Context, cmd command.Command, ec *command.ExecutionContext) *Output {
	res := p.executor.Execute(ctx, cmd, ec)
	out := &Output{Commands: []command.Command{cmd}, Results: []*command.Result{res}}
	if res.Success {
		out.Response = p.messages.Done[cmd.Name]
		return out
	}
	phone := ""
	if ec.Company != nil {
		phone = ec.Company.Phone
	}
	out.Response = p.cleaner.Clean(Reconcile("", out.Results, phone, ec.Company.Location(), p.messages))
	return out
}
