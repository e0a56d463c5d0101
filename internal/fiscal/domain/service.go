package domain

import (
	"context"
	"time"
)

// Service is the administrator-facing surface of the fiscal integration.
// Configuration changes invalidate the cached manager for the org so the
// next signing call re-reads configuration.
type Service interface {
	GetConfig(ctx context.Context) (*ConfigSummary, error)
	UpsertConfig(ctx context.Context, req UpsertRequest) (*ConfigSummary, error)
	SetActive(ctx context.Context, isActive bool) (*ConfigSummary, error)
	Status(ctx context.Context) (*StatusResponse, error)
	Export(ctx context.Context, start, end time.Time) ([]byte, error)
}

// UpsertRequest carries the settings-form payload.
type UpsertRequest struct {
	APIKey      string `json:"api_key"`
	APISecret   string `json:"api_secret"`
	TssID       string `json:"tss_id"`
	ClientID    string `json:"client_id"`
	AdminPIN    string `json:"admin_pin,omitempty"`
	Environment string `json:"environment"`
}

// ConfigSummary is the masked view returned to administrators. Secrets
// never leave the service decrypted.
type ConfigSummary struct {
	TssID       string `json:"tss_id"`
	ClientID    string `json:"client_id"`
	Environment string `json:"environment"`
	APIKeyHint  string `json:"api_key_hint"`
	IsActive    bool   `json:"is_active"`
	Configured  bool   `json:"configured"`
}

// StatusResponse reports live signing health for the settings page.
type StatusResponse struct {
	Enabled  bool   `json:"enabled"`
	TssState string `json:"tss_state,omitempty"`
	Healthy  bool   `json:"healthy"`
}
