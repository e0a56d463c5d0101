package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository persists sale records.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sale *Sale) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, saleID int64) (*Sale, error)
	List(ctx context.Context, db *gorm.DB, orgID int64) ([]Sale, error)
	AttachTseData(ctx context.Context, db *gorm.DB, saleID int64, tseData datatypes.JSON, updatedAt time.Time) error
	UpdateStatus(ctx context.Context, db *gorm.DB, saleID int64, status string, updatedAt time.Time) error
}
