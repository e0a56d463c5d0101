package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/fiskal/internal/fiscal/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindConfig(ctx context.Context, db *gorm.DB, orgID int64) (*domain.FiscalConfig, error) {
	var item domain.FiscalConfig
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, tss_id, client_id, environment, credentials, is_active, created_at, updated_at
		 FROM fiscal_configs
		 WHERE org_id = ?
		 LIMIT 1`,
		orgID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpsertConfig(ctx context.Context, db *gorm.DB, config *domain.FiscalConfig) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO fiscal_configs (
			id, org_id, tss_id, client_id, environment, credentials, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id)
		DO UPDATE SET tss_id = EXCLUDED.tss_id,
			client_id = EXCLUDED.client_id,
			environment = EXCLUDED.environment,
			credentials = EXCLUDED.credentials,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		config.ID,
		config.OrgID,
		config.TssID,
		config.ClientID,
		config.Environment,
		config.Credentials,
		config.IsActive,
		config.CreatedAt,
		config.UpdatedAt,
	).Error
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, orgID int64, isActive bool, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE fiscal_configs
		 SET is_active = ?, updated_at = ?
		 WHERE org_id = ?`,
		isActive,
		updatedAt,
		orgID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
