package services

import "errors"

// Error taxonomy for the order core. Handlers map these onto HTTP statuses;
// everything else surfaces as an internal error.
var (
	ErrOrderNotFound            = errors.New("order not found")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrIntegrationNotConfigured = errors.New("integration not configured")
	ErrIntegrationDisabled      = errors.New("integration disabled")
	ErrUnknownProvider          = errors.New("unknown provider")
	ErrProviderRejected         = errors.New("provider rejected request")
	ErrProviderUnreachable      = errors.New("provider unreachable")
	ErrConflict                 = errors.New("concurrent update lost the race")
	ErrValidation               = errors.New("validation failed")
	ErrWebhookUnverified        = errors.New("webhook signature verification failed")
	ErrInvalidCredentials       = errors.New("invalid username or password")
)
