package mail

import (
	"bytes"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jhillyerd/enmime"
)

// Recipient source keys accepted by Message.Recipients.
const (
	SourceOriginalTo  = "original_to"
	SourceDeliveredTo = "delivered_to"
	SourceTo          = "to"
	SourceBody        = "body"
)

// DefaultRecipientOrder is the order recipient headers are searched when no
// per-rule override is configured. Forward and filter rules frequently bury
// the interesting address in X-Original-To or Delivered-To rather than To.
var DefaultRecipientOrder = []string{SourceOriginalTo, SourceDeliveredTo, SourceTo}

// skippedHeaders are excluded from the filtered header map.
var skippedHeaders = map[string]bool{
	"to":            true,
	"cc":            true,
	"from":          true,
	"subject":       true,
	"delivered-to":  true,
	"x-original-to": true,
	"received":      true,
	"date":          true,
}

var percentPattern = regexp.MustCompile(`(?:%[0-9a-fA-F]{2})+`)

// Message wraps a parsed MIME envelope and exposes the normalized view the
// processing pipeline works with. Accessors are lazy and memoized; a Message
// is rebuilt per inbound item and is not safe for concurrent use.
type Message struct {
	raw []byte
	env *enmime.Envelope

	recipients  map[string][]string
	senders     []Address
	sendersSet  bool
	body        string
	html        string
	attachments []*Attachment
	bodyParsed  bool
	headers     map[string]string
}

// Parse decodes raw RFC822/MIME bytes into a Message.
func Parse(raw []byte) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return &Message{
		raw:        raw,
		env:        env,
		recipients: make(map[string][]string),
	}, nil
}

// Raw returns the original byte sequence, retained for audit and replay.
func (m *Message) Raw() []byte {
	return m.raw
}

// Recipients resolves candidate recipient addresses by walking the given
// source order. Delivered-To and X-Original-To may legitimately repeat and
// are treated as multi-valued; the "body" source scans the plain body for
// bracketed addresses. Results are deduplicated by address preserving first
// occurrence and memoized per distinct order.
func (m *Message) Recipients(order []string) []string {
	if len(order) == 0 {
		order = DefaultRecipientOrder
	}
	key := strings.Join(order, ",")
	if cached, ok := m.recipients[key]; ok {
		return cached
	}

	var found []Address
	for _, source := range order {
		switch source {
		case SourceOriginalTo:
			found = append(found, m.addressHeader("X-Original-To")...)
		case SourceDeliveredTo:
			found = append(found, m.addressHeader("Delivered-To")...)
		case SourceTo:
			found = append(found, m.addressHeader("To")...)
		case SourceBody:
			found = append(found, m.recipientsFromBody()...)
		}
	}

	seen := make(map[string]struct{}, len(found))
	emails := make([]string, 0, len(found))
	for _, a := range found {
		addr := strings.ToLower(a.Address)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		emails = append(emails, a.Address)
	}

	m.recipients[key] = emails
	return emails
}

// Senders parses the From header, which may carry a comma-joined list.
func (m *Message) Senders() []Address {
	if !m.sendersSet {
		m.senders = m.addressHeader("From")
		m.sendersSet = true
	}
	return m.senders
}

// Sender returns the first From address, or "" when the header is missing or
// unparseable.
func (m *Message) Sender() string {
	senders := m.Senders()
	if len(senders) == 0 {
		return ""
	}
	return senders[0].Address
}

// To parses the To header.
func (m *Message) To() []Address {
	return m.addressHeader("To")
}

// Cc parses the Cc header.
func (m *Message) Cc() []Address {
	return m.addressHeader("Cc")
}

// Subject returns the decoded subject, falling back to the raw encoded-word
// value when decoding fails.
func (m *Message) Subject() string {
	raw := ""
	if m.env.Root != nil {
		raw = m.env.Root.Header.Get("Subject")
	}
	decoded, err := headerDecoder.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// MessageID returns the Message-Id header with the surrounding angle
// brackets removed.
func (m *Message) MessageID() string {
	id := strings.TrimSpace(m.env.GetHeader("Message-Id"))
	id = strings.TrimPrefix(id, "<")
	return strings.TrimSuffix(id, ">")
}

// Body returns the UTF-8 normalized plain-text body.
func (m *Message) Body() string {
	m.parseBody()
	return m.body
}

// HTML returns the UTF-8 normalized HTML body.
func (m *Message) HTML() string {
	m.parseBody()
	return m.html
}

// Attachments returns the message attachments in part order.
func (m *Message) Attachments() []*Attachment {
	m.parseBody()
	return m.attachments
}

// Headers builds a filtered map of the remaining headers: lower-cased names,
// decoded values with %XX sequences unescaped ("+" is deliberately not
// translated to a space).
func (m *Message) Headers() map[string]string {
	if m.headers != nil {
		return m.headers
	}
	m.headers = make(map[string]string)
	if m.env.Root == nil {
		return m.headers
	}
	for name, values := range m.env.Root.Header {
		lower := strings.ToLower(name)
		if skippedHeaders[lower] {
			continue
		}
		decoded := make([]string, 0, len(values))
		for _, v := range values {
			d, err := headerDecoder.DecodeHeader(v)
			if err != nil {
				d = v
			}
			decoded = append(decoded, d)
		}
		m.headers[lower] = unescapePercent(strings.Join(decoded, "\n"))
	}
	return m.headers
}

// addressHeader resolves a header that may repeat into a flat address list.
func (m *Message) addressHeader(name string) []Address {
	values := m.env.GetHeaderValues(name)
	if len(values) == 0 {
		return nil
	}
	return ParseAddressList(strings.Join(values, ", "))
}

// recipientsFromBody scans the plain body for <user@host> substrings.
func (m *Message) recipientsFromBody() []Address {
	matches := bracketedEmailPattern.FindAllStringSubmatch(m.Body(), -1)
	out := make([]Address, 0, len(matches))
	for _, match := range matches {
		out = append(out, Address{Address: match[1]})
	}
	return dedupeAddresses(out)
}

// parseBody assembles body, html, and attachments in one pass over the MIME
// tree. A text/plain leaf appends to body, text/html to html, and any other
// part with a derivable filename becomes an Attachment.
func (m *Message) parseBody() {
	if m.bodyParsed {
		return
	}
	m.bodyParsed = true

	root := m.env.Root
	if root == nil {
		return
	}

	if root.FirstChild != nil {
		var body, html []string
		m.scanParts(root, &body, &html)
		m.body = strings.Join(body, "\n")
		m.html = strings.Join(html, "\n")
	} else {
		if strings.Contains(root.ContentType, "text/html") {
			m.html = string(root.Content)
		} else {
			m.body = string(root.Content)
		}
	}

	// enmime decodes part charsets already; re-normalizing repairs the cases
	// where an unknown or lying charset left invalid bytes behind.
	m.body = ToUTF8([]byte(m.body), "utf-8")
	m.html = ToUTF8([]byte(m.html), "utf-8")
}

func (m *Message) scanParts(part *enmime.Part, body, html *[]string) {
	for child := part.FirstChild; child != nil; child = child.NextSibling {
		if child.FirstChild != nil {
			m.scanParts(child, body, html)
			continue
		}
		switch {
		case strings.Contains(child.ContentType, "text/plain"):
			*body = append(*body, string(child.Content))
		case strings.Contains(child.ContentType, "text/html"):
			*html = append(*html, string(child.Content))
		default:
			att := &Attachment{
				ContentType: child.ContentType,
				Filename:    child.FileName,
				data:        child.Content,
			}
			if att.Attached() {
				m.attachments = append(m.attachments, att)
			}
		}
	}
}

// unescapePercent decodes runs of %XX sequences, keeping the original text
// whenever the decoded bytes are not valid UTF-8.
func unescapePercent(s string) string {
	return percentPattern.ReplaceAllStringFunc(s, func(match string) string {
		raw, err := hex.DecodeString(strings.ReplaceAll(match, "%", ""))
		if err != nil || !utf8.Valid(raw) {
			return match
		}
		return string(raw)
	})
}
