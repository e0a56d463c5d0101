package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository persists per-organization fiscal configuration.
type Repository interface {
	FindConfig(ctx context.Context, db *gorm.DB, orgID int64) (*FiscalConfig, error)
	UpsertConfig(ctx context.Context, db *gorm.DB, config *FiscalConfig) error
	UpdateStatus(ctx context.Context, db *gorm.DB, orgID int64, isActive bool, updatedAt time.Time) (bool, error)
}
