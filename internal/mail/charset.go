package mail

import (
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// fallbackCharsets is the ordered list of candidate source encodings tried
// when a byte sequence carries no usable charset declaration. The first
// candidate that yields valid UTF-8 wins.
var fallbackCharsets = []string{
	"utf-8",
	"iso-8859-1",
	"iso-8859-2",
	"iso-8859-3",
	"iso-8859-4",
	"iso-8859-5",
	"iso-8859-6",
	"iso-8859-7",
	"iso-8859-8",
	"iso-8859-9",
	"iso-8859-15",
	"gb2312",
}

// ToUTF8 converts b to a valid UTF-8 string. It never fails: when neither the
// declared charset nor any fallback candidate produces valid UTF-8, the bytes
// are converted lossily with replacement runes.
func ToUTF8(b []byte, declared string) string {
	if len(b) == 0 {
		return ""
	}

	declared = strings.ToLower(strings.TrimSpace(declared))
	switch declared {
	case "", "utf-8", "utf8":
		if utf8.Valid(b) {
			return string(b)
		}
		// The declaration was wrong or missing; run the candidate chain.
	default:
		if s, ok := decodeAs(b, declared); ok {
			return s
		}
	}

	for _, name := range fallbackCharsets {
		if name == "utf-8" {
			if utf8.Valid(b) {
				return string(b)
			}
			continue
		}
		if s, ok := decodeAs(b, name); ok {
			return s
		}
	}

	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}

func decodeAs(b []byte, name string) (string, bool) {
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return "", false
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}

// charsetReader adapts the IANA encoding index to mime.WordDecoder. Unknown
// labels pass the input through untouched rather than failing the decode.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(strings.ToLower(label))
	if err != nil || enc == nil {
		return input, nil
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}
