package domain

import "errors"

// Failure taxonomy of the fiscal signing integration. The service client
// surfaces these typed errors on every failure; only the manager's
// signing boundary collapses them to a nil signature.
var (
	ErrAuthenticationFailed     = errors.New("authentication_failed")
	ErrTssStateTransitionFailed = errors.New("tss_state_transition_failed")
	ErrAdminAuthFailed          = errors.New("admin_auth_failed")
	ErrClientRegistrationFailed = errors.New("client_registration_failed")
	ErrTransactionStartFailed   = errors.New("transaction_start_failed")
	ErrTransactionFinishFailed  = errors.New("transaction_finish_failed")
	ErrTransactionCancelFailed  = errors.New("transaction_cancel_failed")
	ErrInitializationTimeout    = errors.New("initialization_timeout")
	ErrExportFailed             = errors.New("export_failed")
	ErrNotConfigured            = errors.New("not_configured")
	ErrNotEnabled               = errors.New("not_enabled")
)

// Admin-surface validation errors.
var (
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidConfig        = errors.New("invalid_config")
	ErrInvalidEnvironment   = errors.New("invalid_environment")
	ErrInvalidDateRange     = errors.New("invalid_date_range")
	ErrNotFound             = errors.New("not_found")
	ErrEncryptionKeyMissing = errors.New("encryption_key_missing")
)
