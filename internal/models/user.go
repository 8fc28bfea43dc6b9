package models

import (
	"time"
)

// User is an account that owns routing rules. Account management itself is a
// thin admin concern; processing only cares about ownership.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Login     string    `gorm:"uniqueIndex;not null;size:255" json:"login"`
	Email     string    `gorm:"size:255" json:"email,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relationships
	Mappings []Mapping `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName returns the table name for User
func (User) TableName() string {
	return "users"
}
