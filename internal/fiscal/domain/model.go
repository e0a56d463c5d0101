package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Environment selects the Fiskaly endpoint a tenant signs against.
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

// TssState mirrors the remote Technical Security System lifecycle. The
// remote API is the source of truth; these values are never persisted
// locally as state.
const (
	TssStateCreated       = "CREATED"
	TssStateUninitialized = "UNINITIALIZED"
	TssStateInitializing  = "INITIALIZING"
	TssStateInitialized   = "INITIALIZED"
	TssStateDisabled      = "DISABLED"
)

// Payment methods accepted by the checkout flow.
const (
	PaymentMethodCash = "cash"
	PaymentMethodCard = "card"
)

// FiscalConfig is the per-organization signing configuration. API
// credentials and the admin PIN live AES-GCM encrypted inside the
// credentials column.
type FiscalConfig struct {
	ID          int64          `json:"id" gorm:"primaryKey"`
	OrgID       int64          `json:"organization_id" gorm:"column:org_id;not null;uniqueIndex:ux_fiscal_configs_org"`
	TssID       string         `json:"tss_id" gorm:"type:text;not null"`
	ClientID    string         `json:"client_id" gorm:"type:text;not null"`
	Environment string         `json:"environment" gorm:"type:text;not null;default:sandbox"`
	Credentials datatypes.JSON `json:"-" gorm:"type:jsonb;not null"`
	IsActive    bool           `json:"is_active" gorm:"not null;default:true"`
	CreatedAt   time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FiscalConfig) TableName() string { return "fiscal_configs" }

// Credentials is the decrypted secret material of a FiscalConfig.
type Credentials struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	AdminPIN  string `json:"admin_pin,omitempty"`
}

// Config is the decrypted, operational view a manager binds to.
type Config struct {
	OrgID       int64
	APIKey      string
	APISecret   string
	TssID       string
	ClientID    string
	AdminPIN    string
	Environment string
	IsActive    bool
}

// SaleItem is one receipt line as submitted by the checkout flow.
// A nil VATRate means the statutory default of 19 percent.
type SaleItem struct {
	Name     string   `json:"name"`
	Price    float64  `json:"price"`
	Quantity float64  `json:"quantity"`
	VATRate  *float64 `json:"vat_rate,omitempty"`
}

// SignatureSnapshot is the denormalized signature bundle attached to a
// sale record once the remote transaction is finished.
type SignatureSnapshot struct {
	TransactionNumber  int64  `json:"transaction_number"`
	SignatureValue     string `json:"signature_value"`
	SignatureCounter   int64  `json:"signature_counter"`
	SignatureAlgorithm string `json:"signature_algorithm"`
	TimeStart          int64  `json:"time_start"`
	TimeEnd            int64  `json:"time_end,omitempty"`
	QRCodeData         string `json:"qr_code_data,omitempty"`
	TssID              string `json:"tss_id"`
	ClientID           string `json:"client_id"`
}
