// Package transport implements the delivery mechanisms a routing rule can
// point at: webhook POST, XMPP message, and background job queue.
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/inletmail/inlet/internal/mail"
	"github.com/inletmail/inlet/internal/models"
	"github.com/inletmail/inlet/internal/reply"
)

// Error marks a network, protocol, or broker failure during delivery. The
// core records it on the audit log and does not retry.
type Error struct {
	Kind models.TransportKind
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Fields is the delivery payload constructed from a matched message.
type Fields struct {
	Subject     string
	To          string
	From        string
	Body        string
	HTML        string
	Emails      string
	Headers     map[string]string
	Attachments []*mail.Attachment
}

// BuildFields assembles the payload for a matched (message, mapping,
// recipient) triple. Recipient headers are walked in the rule's override
// order when set, defaultOrder otherwise, so Emails is computed under the
// same order the message was matched with. The body is reply-stripped when
// the rule defines a separator; Emails carries the remaining recipients,
// matched one excluded.
func BuildFields(msg *mail.Message, mapping *models.Mapping, recipient string, defaultOrder []string) Fields {
	order := mapping.HeaderOrder()
	if order == nil {
		order = defaultOrder
	}
	recipients := msg.Recipients(order)
	others := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if !strings.EqualFold(r, recipient) {
			others = append(others, r)
		}
	}

	from := ""
	if senders := msg.Senders(); len(senders) > 0 {
		from = senders[0].String()
	}

	return Fields{
		Subject:     msg.Subject(),
		To:          recipient,
		From:        from,
		Body:        reply.Strip(msg.Body(), mapping.Separator),
		HTML:        msg.HTML(),
		Emails:      strings.Join(others, ", "),
		Headers:     msg.Headers(),
		Attachments: msg.Attachments(),
	}
}

// Transport is one delivery mechanism variant.
type Transport interface {
	Kind() models.TransportKind
	Deliver(ctx context.Context, mapping *models.Mapping, fields Fields) error
}

// Registry maps transport kinds to implementations. The set is closed:
// adding a transport means adding a variant and a registry entry.
type Registry struct {
	transports map[models.TransportKind]Transport
}

// NewRegistry creates a registry holding the given transports.
func NewRegistry(transports ...Transport) *Registry {
	r := &Registry{transports: make(map[models.TransportKind]Transport, len(transports))}
	for _, t := range transports {
		r.Register(t)
	}
	return r
}

// Register adds or replaces the implementation for a transport kind.
func (r *Registry) Register(t Transport) {
	r.transports[t.Kind()] = t
}

// Deliver dispatches the payload to the mapping's transport.
func (r *Registry) Deliver(ctx context.Context, mapping *models.Mapping, fields Fields) error {
	t, ok := r.transports[mapping.Transport]
	if !ok {
		return fmt.Errorf("no transport registered for %q", mapping.Transport)
	}
	return t.Deliver(ctx, mapping, fields)
}
