package smtp

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-smtp"
)

// Session implements the go-smtp Session interface
type Session struct {
	backend    *Backend
	from       string
	recipients []string
}

// NewSession creates a new SMTP session
func NewSession(backend *Backend) *Session {
	return &Session{
		backend:    backend,
		recipients: make([]string, 0),
	}
}

// AuthPlain handles PLAIN authentication (not required for receiving)
func (s *Session) AuthPlain(username, password string) error {
	return nil
}

// Mail handles the MAIL FROM command
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	s.backend.logger.Debug("MAIL FROM", slog.String("from", from))
	return nil
}

// Rcpt handles the RCPT TO command. Any syntactically valid address is
// accepted; unroutable mail is dealt with after spooling.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	addr, err := cleanAddress(to)
	if err != nil {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Invalid recipient address",
		}
	}

	s.recipients = append(s.recipients, addr)
	s.backend.logger.Debug("RCPT TO", slog.String("to", addr))
	return nil
}

// Data handles the DATA command. The raw message is written to the spool
// with a Delivered-To header prepended for every envelope recipient, so the
// pipeline sees the actual envelope addresses even when the To header lies.
func (s *Session) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Failed to read message",
		}
	}

	var buf bytes.Buffer
	for _, recipient := range s.recipients {
		fmt.Fprintf(&buf, "Delivered-To: %s\r\n", recipient)
	}
	buf.Write(raw)

	id, err := s.backend.spool.Put(buf.Bytes())
	if err != nil {
		s.backend.logger.Error("failed to spool message", slog.Any("error", err))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary storage error",
		}
	}

	s.backend.logger.Info("message spooled",
		slog.String("id", id),
		slog.String("from", s.from),
		slog.Int("recipients", len(s.recipients)))
	return nil
}

// Reset resets the session state
func (s *Session) Reset() {
	s.from = ""
	s.recipients = make([]string, 0)
}

// Logout handles the end of the session
func (s *Session) Logout() error {
	return nil
}

// cleanAddress strips angle brackets and validates the bare address form.
func cleanAddress(address string) (string, error) {
	address = strings.TrimPrefix(address, "<")
	address = strings.TrimSuffix(address, ">")
	address = strings.TrimSpace(address)

	user, domain, ok := strings.Cut(address, "@")
	if !ok || user == "" || domain == "" {
		return "", fmt.Errorf("invalid email address: %s", address)
	}
	return address, nil
}
