package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/inletmail/inlet/internal/models"
	"gorm.io/gorm"
)

// MappingRepository defines the interface for routing-rule data access
type MappingRepository interface {
	FindByUserDomain(ctx context.Context, emailUser, emailDomain string) (*models.Mapping, error)
	FindWildcardsByDomain(ctx context.Context, emailDomain string) ([]models.Mapping, error)
	Save(ctx context.Context, mapping *models.Mapping) error
	GetByID(ctx context.Context, id uint) (*models.Mapping, error)
	List(ctx context.Context, limit, offset int) ([]models.Mapping, int64, error)
	Delete(ctx context.Context, id uint) error
}

// mappingRepository implements MappingRepository using GORM
type mappingRepository struct {
	db *gorm.DB
}

// NewMappingRepository creates a new MappingRepository instance
func NewMappingRepository(db *gorm.DB) MappingRepository {
	return &mappingRepository{db: db}
}

// FindByUserDomain retrieves the rule whose pattern literally equals the
// given (user, domain) pair.
func (r *mappingRepository) FindByUserDomain(ctx context.Context, emailUser, emailDomain string) (*models.Mapping, error) {
	var mapping models.Mapping
	result := r.db.WithContext(ctx).
		Where("email_user = ? AND email_domain = ?", emailUser, emailDomain).
		First(&mapping)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find mapping by address: %w", result.Error)
	}
	return &mapping, nil
}

// FindWildcardsByDomain retrieves every rule for the domain whose user
// pattern contains a wildcard.
func (r *mappingRepository) FindWildcardsByDomain(ctx context.Context, emailDomain string) ([]models.Mapping, error) {
	var mappings []models.Mapping
	result := r.db.WithContext(ctx).
		Where("email_domain = ? AND email_user LIKE ?", emailDomain, "%*%").
		Find(&mappings)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find wildcard mappings: %w", result.Error)
	}
	return mappings, nil
}

// Save validates and persists a rule, enforcing (email_user, email_domain)
// uniqueness.
func (r *mappingRepository) Save(ctx context.Context, mapping *models.Mapping) error {
	if err := mapping.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	result := r.db.WithContext(ctx).Save(mapping)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("mapping for '%s' already exists: %w", mapping.FullEmail(), ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to save mapping: %w", result.Error)
	}
	return nil
}

// GetByID retrieves a mapping by its ID
func (r *mappingRepository) GetByID(ctx context.Context, id uint) (*models.Mapping, error) {
	var mapping models.Mapping
	result := r.db.WithContext(ctx).First(&mapping, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get mapping by ID: %w", result.Error)
	}
	return &mapping, nil
}

// List retrieves mappings with pagination, newest first.
func (r *mappingRepository) List(ctx context.Context, limit, offset int) ([]models.Mapping, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Mapping{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count mappings: %w", err)
	}

	var mappings []models.Mapping
	result := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&mappings)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("failed to list mappings: %w", result.Error)
	}
	return mappings, total, nil
}

// Delete deletes a mapping by its ID
func (r *mappingRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Mapping{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete mapping: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
