package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inletmail/inlet/internal/mail"
	"github.com/inletmail/inlet/internal/models"
	"github.com/inletmail/inlet/internal/repository"
	"github.com/inletmail/inlet/internal/services"
	"github.com/inletmail/inlet/internal/transport"
)

// Options controls per-process behavior of the pipeline.
type Options struct {
	// RecipientOrder is the default header priority for recipient
	// extraction when a mapping does not override it.
	RecipientOrder []string

	// ProcessingEnabled gates the delivery step. When false the pipeline
	// runs matching and logging but never calls a transport.
	ProcessingEnabled bool

	// LogUnmatched records messages that matched no mapping.
	LogUnmatched bool
}

// Processor runs one raw message through parsing, recipient matching,
// delivery, and audit logging. Delivery failures are contained per message
// and recorded on the log entry; Process only returns an error for input
// that cannot be parsed at all.
type Processor struct {
	opts       Options
	matcher    *services.Matcher
	transports *transport.Registry
	logged     repository.LoggedMailRepository
	hooks      *Hooks
	logger     *slog.Logger
	now        func() time.Time
}

func NewProcessor(
	opts Options,
	matcher *services.Matcher,
	transports *transport.Registry,
	logged repository.LoggedMailRepository,
	hooks *Hooks,
	logger *slog.Logger,
) *Processor {
	if hooks == nil {
		hooks = &Hooks{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		opts:       opts,
		matcher:    matcher,
		transports: transports,
		logged:     logged,
		hooks:      hooks,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Process handles a single raw message end to end and returns the parsed
// message for callers that want to inspect it.
func (p *Processor) Process(ctx context.Context, raw []byte) (*mail.Message, error) {
	msg, err := mail.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	if d := p.hooks.runPreMapping(ctx, msg); d.Cancelled() {
		p.logger.Debug("message cancelled before mapping", "reason", d.Reason())
		return msg, nil
	}

	entry := &models.LoggedMail{
		Sender:  msg.Sender(),
		Subject: msg.Subject(),
	}

	candidates := msg.Recipients(p.opts.RecipientOrder)
	if len(candidates) > 0 {
		entry.Recipient = candidates[0]
	}

	mapping, recipient, err := p.matcher.Match(ctx, candidates)
	if err != nil {
		entry.ErrorMessage = errorMessage(err)
		p.persist(ctx, entry)
		return msg, nil
	}

	if mapping == nil {
		if p.opts.LogUnmatched {
			p.logger.Info("no mapping matched", "sender", entry.Sender, "recipient", entry.Recipient)
			p.persist(ctx, entry)
		}
		return msg, nil
	}

	entry.Recipient = recipient
	entry.MappingID = &mapping.ID

	if d := p.hooks.runPreProcessing(ctx, msg, mapping); d.Cancelled() {
		p.logger.Info("message cancelled before delivery", "mapping_id", mapping.ID, "reason", d.Reason())
		entry.ErrorMessage = CancelledMessage
		p.persist(ctx, entry)
		return msg, nil
	}

	if p.opts.ProcessingEnabled {
		fields := transport.BuildFields(msg, mapping, recipient, p.opts.RecipientOrder)
		if err := p.transports.Deliver(ctx, mapping, fields); err != nil {
			p.logger.Error("delivery failed", "mapping_id", mapping.ID, "recipient", recipient, "error", err)
			entry.ErrorMessage = errorMessage(err)
			p.persist(ctx, entry)
			return msg, nil
		}
		delivered := p.now()
		entry.DeliveredAt = &delivered
		p.hooks.runPostProcessing(ctx, msg, mapping, entry)
	}

	p.persist(ctx, entry)
	return msg, nil
}

func (p *Processor) persist(ctx context.Context, entry *models.LoggedMail) {
	if p.logged == nil {
		return
	}
	if err := p.logged.Save(ctx, entry); err != nil {
		p.logger.Error("failed to save logged mail", "error", err)
	}
}

// errorMessage renders a contained failure as "<type>: <description>" so
// the audit trail shows what kind of problem stopped delivery.
func errorMessage(err error) string {
	return fmt.Sprintf("%T: %v", err, err)
}
