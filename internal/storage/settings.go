package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	"gorm.io/gorm"
)

const (
	settingDailyReviewLimit = "daily_review_limit"

	// DefaultDailyReviewLimit applies until the learner configures a limit.
	DefaultDailyReviewLimit = 50
)

// ErrInvalidDailyLimit indicates a non-positive daily review limit. The prior
// value is retained when the new one is rejected.
var ErrInvalidDailyLimit = errors.New("storage: daily review limit must be positive")

// SettingsStore persists learner-local configuration values. Settings are
// neither versioned nor synced.
type SettingsStore struct {
	db *gorm.DB
}

// NewSettingsStore wraps the database handle in a settings store.
func NewSettingsStore(db *gorm.DB) (*SettingsStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &SettingsStore{db: db}, nil
}

// DailyReviewLimit returns the configured daily review limit, falling back to
// the default when no value has been stored or the stored value is unusable.
func (s *SettingsStore) DailyReviewLimit(ctx context.Context) (int, error) {
	var setting vocab.Setting
	err := s.db.WithContext(ctx).Where("name = ?", settingDailyReviewLimit).Take(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultDailyReviewLimit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: read daily review limit: %w", err)
	}
	limit, err := strconv.Atoi(setting.Value)
	if err != nil || limit <= 0 {
		return DefaultDailyReviewLimit, nil
	}
	return limit, nil
}

// SetDailyReviewLimit persists a new daily review limit. Non-positive values
// are rejected at this boundary and the prior value stays in effect.
func (s *SettingsStore) SetDailyReviewLimit(ctx context.Context, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDailyLimit, limit)
	}
	setting := vocab.Setting{
		Name:  settingDailyReviewLimit,
		Value: strconv.Itoa(limit),
	}
	if err := s.db.WithContext(ctx).Save(&setting).Error; err != nil {
		return fmt.Errorf("storage: write daily review limit: %w", err)
	}
	return nil
}
