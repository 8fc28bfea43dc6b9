package pipeline

import (
	"context"

	"github.com/inletmail/inlet/internal/mail"
	"github.com/inletmail/inlet/internal/models"
)

// CancelledMessage is the sentinel recorded on the audit log when a hook
// cancels processing, distinguishing cancellation from delivery failures.
const CancelledMessage = "Cancelled."

// Decision is the result of a cancellable hook.
type Decision struct {
	cancelled bool
	reason    string
}

// Continue lets processing proceed.
func Continue() Decision {
	return Decision{}
}

// Cancel aborts further processing of the current message.
func Cancel(reason string) Decision {
	return Decision{cancelled: true, reason: reason}
}

// Cancelled reports whether the hook aborted processing.
func (d Decision) Cancelled() bool {
	return d.cancelled
}

// Reason returns the cancellation reason, if any.
func (d Decision) Reason() string {
	return d.reason
}

// Hook signatures for the three extension points.
type (
	PreMappingHook     func(ctx context.Context, msg *mail.Message) Decision
	PreProcessingHook  func(ctx context.Context, msg *mail.Message, mapping *models.Mapping) Decision
	PostProcessingHook func(ctx context.Context, msg *mail.Message, mapping *models.Mapping, logged *models.LoggedMail)
)

// Hooks is the registry of pipeline extension points. Each point may hold
// multiple hooks; pre-mapping and pre-processing hooks run in registration
// order and the first cancellation wins.
type Hooks struct {
	preMapping     []PreMappingHook
	preProcessing  []PreProcessingHook
	postProcessing []PostProcessingHook
}

// OnPreMapping registers a hook invoked before recipient matching.
func (h *Hooks) OnPreMapping(hook PreMappingHook) {
	h.preMapping = append(h.preMapping, hook)
}

// OnPreProcessing registers a hook invoked after a rule matched but before
// delivery.
func (h *Hooks) OnPreProcessing(hook PreProcessingHook) {
	h.preProcessing = append(h.preProcessing, hook)
}

// OnPostProcessing registers an informational hook invoked after a
// successful delivery.
func (h *Hooks) OnPostProcessing(hook PostProcessingHook) {
	h.postProcessing = append(h.postProcessing, hook)
}

func (h *Hooks) runPreMapping(ctx context.Context, msg *mail.Message) Decision {
	for _, hook := range h.preMapping {
		if d := hook(ctx, msg); d.Cancelled() {
			return d
		}
	}
	return Continue()
}

func (h *Hooks) runPreProcessing(ctx context.Context, msg *mail.Message, mapping *models.Mapping) Decision {
	for _, hook := range h.preProcessing {
		if d := hook(ctx, msg, mapping); d.Cancelled() {
			return d
		}
	}
	return Continue()
}

func (h *Hooks) runPostProcessing(ctx context.Context, msg *mail.Message, mapping *models.Mapping, logged *models.LoggedMail) {
	for _, hook := range h.postProcessing {
		hook(ctx, msg, mapping, logged)
	}
}
