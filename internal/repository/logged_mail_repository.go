package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/inletmail/inlet/internal/models"
	"gorm.io/gorm"
)

// LoggedMailRepository defines the interface for audit-record data access
type LoggedMailRepository interface {
	Save(ctx context.Context, logged *models.LoggedMail) error
	First(ctx context.Context) (*models.LoggedMail, error)
	Count(ctx context.Context) (int64, error)
	List(ctx context.Context, limit, offset int) ([]models.LoggedMail, int64, error)
}

// loggedMailRepository implements LoggedMailRepository using GORM
type loggedMailRepository struct {
	db *gorm.DB
}

// NewLoggedMailRepository creates a new LoggedMailRepository instance
func NewLoggedMailRepository(db *gorm.DB) LoggedMailRepository {
	return &loggedMailRepository{db: db}
}

// Save persists an audit record.
func (r *loggedMailRepository) Save(ctx context.Context, logged *models.LoggedMail) error {
	result := r.db.WithContext(ctx).Save(logged)
	if result.Error != nil {
		return fmt.Errorf("failed to save logged mail: %w", result.Error)
	}
	return nil
}

// First retrieves the oldest record.
func (r *loggedMailRepository) First(ctx context.Context) (*models.LoggedMail, error) {
	var logged models.LoggedMail
	result := r.db.WithContext(ctx).Order("created_at ASC, id ASC").First(&logged)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get first logged mail: %w", result.Error)
	}
	return &logged, nil
}

// Count returns the number of persisted records.
func (r *loggedMailRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.LoggedMail{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count logged mails: %w", result.Error)
	}
	return count, nil
}

// List retrieves records with pagination, newest first.
func (r *loggedMailRepository) List(ctx context.Context, limit, offset int) ([]models.LoggedMail, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.LoggedMail{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count logged mails: %w", err)
	}

	var logged []models.LoggedMail
	result := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&logged)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list logged mails: %w", result.Error)
	}
	return logged, total, nil
}
