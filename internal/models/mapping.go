package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TransportKind selects the delivery mechanism for a mapping.
type TransportKind string

const (
	TransportHTTPPost TransportKind = "http_post"
	TransportJabber   TransportKind = "jabber"
	TransportQueue    TransportKind = "queue"
)

var (
	// emailUserPattern allows word/dot/percent/plus/hyphen characters and at
	// most one wildcard anywhere in the pattern.
	emailUserPattern   = regexp.MustCompile(`^[\w.%+-]*(\*[\w.%+-]*)?$`)
	emailDomainPattern = regexp.MustCompile(`^[\w.-]+$`)
	httpURLPattern     = regexp.MustCompile(`(?i)^https?://[^/]+/?`)
	bareEmailPattern   = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)
	queueLocatorPattern = regexp.MustCompile(`^[\w.-]+/[\w:.-]+$`)
)

// Mapping is a routing rule: an email address pattern associated with a
// delivery destination and transport. Rules are created through the admin
// surface and read-only during message processing.
type Mapping struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	UserID      uint          `gorm:"not null;index" json:"user_id"`
	EmailUser   string        `gorm:"not null;size:255;uniqueIndex:idx_mappings_address" json:"email_user"`
	EmailDomain string        `gorm:"not null;size:255;uniqueIndex:idx_mappings_address" json:"email_domain"`
	Destination string        `gorm:"not null;size:255" json:"destination"`
	Transport   TransportKind `gorm:"not null;size:32;default:http_post" json:"transport"`
	Separator   string        `gorm:"size:255" json:"separator,omitempty"`

	// RecipientHeaderOrder optionally overrides the header walk order for
	// messages matched to this rule, stored as a comma-separated list.
	RecipientHeaderOrder string `gorm:"size:255" json:"recipient_header_order,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	User        User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	LoggedMails []LoggedMail `gorm:"foreignKey:MappingID" json:"-"`

	userRegex *regexp.Regexp `gorm:"-" json:"-"`
}

// TableName returns the table name for Mapping
func (Mapping) TableName() string {
	return "mappings"
}

// FullEmail renders the pattern side of the rule.
func (m *Mapping) FullEmail() string {
	return m.EmailUser + "@" + m.EmailDomain
}

// Wildcard reports whether the user pattern contains a wildcard.
func (m *Mapping) Wildcard() bool {
	return strings.Contains(m.EmailUser, "*")
}

// HeaderOrder returns the per-rule recipient header order override, or nil
// when the rule relies on the configured default.
func (m *Mapping) HeaderOrder() []string {
	if m.RecipientHeaderOrder == "" {
		return nil
	}
	parts := strings.Split(m.RecipientHeaderOrder, ",")
	order := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			order = append(order, p)
		}
	}
	return order
}

// Matches reports whether the given normalized user part matches the rule's
// pattern. A wildcard pattern compiles to a prefix match; a literal pattern
// to an exact anchor.
func (m *Mapping) Matches(user string) bool {
	if m.userRegex == nil {
		pattern := "^" + strings.Replace(regexp.QuoteMeta(m.EmailUser), `\*`, `(.*)`, 1) + "$"
		m.userRegex = regexp.MustCompile(pattern)
	}
	return m.userRegex.MatchString(user)
}

// Validate checks the pattern format and the destination against the selected
// transport.
func (m *Mapping) Validate() error {
	if m.EmailUser == "" || !emailUserPattern.MatchString(m.EmailUser) {
		return fmt.Errorf("email_user %q is not a valid address pattern", m.EmailUser)
	}
	if m.EmailDomain == "" || !emailDomainPattern.MatchString(m.EmailDomain) {
		return fmt.Errorf("email_domain %q is not a valid domain", m.EmailDomain)
	}
	if m.Destination == "" {
		return fmt.Errorf("destination is required")
	}
	switch m.Transport {
	case TransportHTTPPost:
		if !httpURLPattern.MatchString(m.Destination) {
			return fmt.Errorf("destination %q is not a valid http(s) URL", m.Destination)
		}
	case TransportJabber:
		if !bareEmailPattern.MatchString(m.Destination) {
			return fmt.Errorf("destination %q is not a valid jabber address", m.Destination)
		}
	case TransportQueue:
		if !queueLocatorPattern.MatchString(m.Destination) {
			return fmt.Errorf("destination %q is not a valid queue/job locator", m.Destination)
		}
	default:
		return fmt.Errorf("unknown transport %q", m.Transport)
	}
	return nil
}
