package domain

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

// Sale is a completed point-of-sale transaction. The tse_data column
// holds the denormalized signature snapshot when fiscal signing
// succeeded; a sale without tse_data is still a valid sale.
type Sale struct {
	ID            int64          `json:"id" gorm:"primaryKey"`
	OrgID         int64          `json:"organization_id" gorm:"column:org_id;not null;index:ix_sales_org"`
	FiscalTxID    string         `json:"fiscal_tx_id" gorm:"type:text;not null;uniqueIndex:ux_sales_fiscal_tx"`
	TotalAmount   float64        `json:"total_amount" gorm:"not null"`
	PaymentMethod string         `json:"payment_method" gorm:"type:text;not null"`
	Items         datatypes.JSON `json:"items" gorm:"type:jsonb;not null"`
	Status        string         `json:"status" gorm:"type:text;not null;default:completed"`
	TseData       datatypes.JSON `json:"tse_data,omitempty" gorm:"type:jsonb"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Sale) TableName() string { return "sales" }
