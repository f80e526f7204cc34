package common

import "errors"

// Error kinds shared by the native modules. Engines wrap these with
// entity-specific context so callers can classify failures while still
// seeing which record was involved. Every failed operation leaves state
// untouched; callers resubmit a corrected operation.
var (
	ErrAccessDenied         = errors.New("access denied")
	ErrNotFound             = errors.New("not found")
	ErrInvalidState         = errors.New("invalid state")
	ErrPeriodViolation      = errors.New("period violation")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrTransferFailure      = errors.New("transfer failure")
	ErrConfigurationInvalid = errors.New("configuration invalid")
	ErrSignatureInvalid     = errors.New("signature invalid")
)
