package mail

import (
	"fmt"
	"mime"
	stdmail "net/mail"
	"regexp"
	"strings"
)

// emailExpr matches a bare email-shaped token inside arbitrary text.
const emailExpr = `[\w._%+-]+[^\s.]@[\w._-]+`

var (
	emailPattern          = regexp.MustCompile(emailExpr)
	bracketedEmailPattern = regexp.MustCompile(`<(` + emailExpr + `)>`)
)

var headerDecoder = &mime.WordDecoder{CharsetReader: charsetReader}

// Address is a single parsed mailbox from an address header.
type Address struct {
	Name    string
	Address string
}

// String formats the address for human-readable payloads.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

// ParseAddressList parses a possibly comma-joined address header value into a
// list of addresses, deduplicated by address and with RFC 2047 encoded words
// decoded. Malformed headers are common in the wild and must not abort
// processing: on structured-parse failure the raw text is scanned for
// email-shaped tokens instead.
func ParseAddressList(value string) []Address {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	decoded, err := headerDecoder.DecodeHeader(value)
	if err != nil {
		decoded = value
	}

	if parsed, err := stdmail.ParseAddressList(decoded); err == nil {
		out := make([]Address, 0, len(parsed))
		for _, a := range parsed {
			out = append(out, Address{Name: a.Name, Address: a.Address})
		}
		return dedupeAddresses(out)
	}

	var out []Address
	for _, match := range emailPattern.FindAllString(decoded, -1) {
		out = append(out, Address{Address: match})
	}
	return dedupeAddresses(out)
}

// dedupeAddresses removes duplicate addresses while preserving first-seen
// order.
func dedupeAddresses(in []Address) []Address {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]Address, 0, len(in))
	for _, a := range in {
		key := strings.ToLower(a.Address)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}
