package models

import (
	"time"
)

// LoggedMail is the audit record of one processing attempt. DeliveredAt set
// means the delivery path completed; ErrorMessage set means a step failed or
// was cancelled; a record may have neither when a matched message was
// processed in dry-run mode.
type LoggedMail struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	MappingID    *uint      `gorm:"index" json:"mapping_id,omitempty"`
	Sender       string     `gorm:"size:255;index" json:"sender"`
	Recipient    string     `gorm:"size:255;index" json:"recipient"`
	Subject      string     `gorm:"size:255;index" json:"subject"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
	ErrorMessage string     `gorm:"size:255" json:"error_message,omitempty"`

	// Relationships
	Mapping *Mapping `gorm:"foreignKey:MappingID" json:"-"`
}

// TableName returns the table name for LoggedMail
func (LoggedMail) TableName() string {
	return "logged_mails"
}

// Delivered reports whether the delivery path completed without an error.
func (l *LoggedMail) Delivered() bool {
	return l.DeliveredAt != nil
}

// Errored reports whether a step failed or cancelled processing.
func (l *LoggedMail) Errored() bool {
	return l.ErrorMessage != ""
}
