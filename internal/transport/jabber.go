package transport

import (
	"context"
	"fmt"
	"log/slog"

	xmpp "github.com/xmppo/go-xmpp"

	"github.com/inletmail/inlet/internal/models"
)

// xmppSender is the slice of the XMPP client the transport uses.
type xmppSender interface {
	Send(chat xmpp.Chat) (int, error)
}

// Jabber delivers payloads as plain-text XMPP messages. The session is
// created lazily on first delivery and reused across messages; this is safe
// only under the single-worker-per-process model.
type Jabber struct {
	logger *slog.Logger
	dial   func() (xmppSender, error)
	client xmppSender
}

// JabberConfig holds the XMPP account used for outbound messages.
type JabberConfig struct {
	Host     string
	User     string
	Password string
}

// NewJabber creates a new Jabber transport.
func NewJabber(cfg JabberConfig, logger *slog.Logger) *Jabber {
	return &Jabber{
		logger: logger,
		dial: func() (xmppSender, error) {
			opts := xmpp.Options{
				Host:     cfg.Host,
				User:     cfg.User,
				Password: cfg.Password,
				Session:  true,
				Resource: "inlet",
			}
			return opts.NewClient()
		},
	}
}

// Kind returns the transport identifier.
func (t *Jabber) Kind() models.TransportKind {
	return models.TransportJabber
}

// Deliver formats a From/To/Subject/Emails block followed by the body and
// sends it to the rule's destination address.
func (t *Jabber) Deliver(ctx context.Context, mapping *models.Mapping, fields Fields) error {
	if t.client == nil {
		client, err := t.dial()
		if err != nil {
			return &Error{Kind: t.Kind(), Err: err}
		}
		t.client = client
	}

	content := fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\nEmails: %s\n\n%s",
		fields.From, fields.To, fields.Subject, fields.Emails, fields.Body)

	if _, err := t.client.Send(xmpp.Chat{Remote: mapping.Destination, Type: "chat", Text: content}); err != nil {
		// Drop the session so the next delivery reconnects.
		t.client = nil
		return &Error{Kind: t.Kind(), Err: err}
	}

	if t.logger != nil {
		t.logger.Debug("jabber message delivered", slog.String("destination", mapping.Destination))
	}
	return nil
}
