package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/fiskal/internal/checkout/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sale *domain.Sale) error {
	return db.WithContext(ctx).Create(sale).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, saleID int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, saleID).
		Limit(1).
		Find(&sale).Error
	if err != nil {
		return nil, err
	}
	if sale.ID == 0 {
		return nil, nil
	}
	return &sale, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, orgID int64) ([]domain.Sale, error) {
	var sales []domain.Sale
	err := db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Limit(100).
		Find(&sales).Error
	if err != nil {
		return nil, err
	}
	return sales, nil
}

func (r *repo) AttachTseData(ctx context.Context, db *gorm.DB, saleID int64, tseData datatypes.JSON, updatedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Sale{}).
		Where("id = ?", saleID).
		Updates(map[string]any{
			"tse_data":   tseData,
			"updated_at": updatedAt,
		}).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, saleID int64, status string, updatedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.Sale{}).
		Where("id = ?", saleID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": updatedAt,
		}).Error
}
