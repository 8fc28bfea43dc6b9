package transport

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inletmail/inlet/internal/mail"
	"github.com/inletmail/inlet/internal/models"
)

func fixtureMessage(t *testing.T, lines ...string) *mail.Message {
	t.Helper()
	msg, err := mail.Parse([]byte(strings.Join(lines, "\r\n")))
	require.NoError(t, err)
	return msg
}

func TestBuildFields(t *testing.T) {
	msg := fixtureMessage(t,
		"From: Bob <bob@example.com>",
		"To: abc@example.com, other@example.com",
		"Subject: hello",
		"X-Custom: kept",
		"Content-Type: text/plain",
		"",
		"new content",
		"",
		"====",
		"> old quoted text",
	)
	mapping := &models.Mapping{
		EmailUser:            "abc",
		EmailDomain:          "example.com",
		Separator:            "====",
		RecipientHeaderOrder: "to",
	}

	fields := BuildFields(msg, mapping, "abc@example.com", nil)

	assert.Equal(t, "hello", fields.Subject)
	assert.Equal(t, "abc@example.com", fields.To)
	assert.Equal(t, "Bob <bob@example.com>", fields.From)
	assert.Equal(t, "new content", fields.Body)
	assert.Equal(t, "other@example.com", fields.Emails)
	assert.Equal(t, "kept", fields.Headers["x-custom"])
}

func TestBuildFields_NoSeparatorKeepsBody(t *testing.T) {
	msg := fixtureMessage(t,
		"From: bob@example.com",
		"To: abc@example.com",
		"Content-Type: text/plain",
		"",
		"body\n====\nquoted",
	)
	mapping := &models.Mapping{RecipientHeaderOrder: "to"}

	fields := BuildFields(msg, mapping, "abc@example.com", nil)

	assert.Contains(t, fields.Body, "quoted")
	assert.Empty(t, fields.Emails)
}

func TestBuildFields_UsesConfiguredDefaultOrder(t *testing.T) {
	msg := fixtureMessage(t,
		"Delivered-To: spooled@example.com",
		"From: bob@example.com",
		"To: abc@example.com, other@example.com",
		"Content-Type: text/plain",
		"",
		"body",
	)
	// No per-rule override, so the configured order decides which headers
	// contribute recipients.
	mapping := &models.Mapping{}

	fields := BuildFields(msg, mapping, "abc@example.com", []string{"to"})

	assert.Equal(t, "other@example.com", fields.Emails)
}

type stubTransport struct {
	kind      models.TransportKind
	delivered int
	err       error
}

func (s *stubTransport) Kind() models.TransportKind { return s.kind }

func (s *stubTransport) Deliver(ctx context.Context, mapping *models.Mapping, fields Fields) error {
	s.delivered++
	return s.err
}

func TestRegistry_DispatchesByKind(t *testing.T) {
	httpStub := &stubTransport{kind: models.TransportHTTPPost}
	queueStub := &stubTransport{kind: models.TransportQueue}
	registry := NewRegistry(httpStub, queueStub)

	mapping := &models.Mapping{Transport: models.TransportQueue}
	require.NoError(t, registry.Deliver(context.Background(), mapping, Fields{}))

	assert.Zero(t, httpStub.delivered)
	assert.Equal(t, 1, queueStub.delivered)
}

func TestRegistry_UnknownKind(t *testing.T) {
	registry := NewRegistry()
	mapping := &models.Mapping{Transport: "carrier_pigeon"}

	err := registry.Deliver(context.Background(), mapping, Fields{})

	assert.Error(t, err)
}
