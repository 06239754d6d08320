// Package services defines the business logic of the reconciliation
// pipeline: SMS ingestion, parsing, the manual reconciliation workbench,
// the merchant callback protocol, and the parser prompt registry. This
// file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed
// at the handler layer.
package services

import "errors"

// Ingestion errors.
var (
	// ErrEmptyText is returned when an inbound SMS payload has no text
	// after trimming.
	ErrEmptyText = errors.New("sms text is empty")
)

// Workbench errors.
var (
	// ErrSmsNotFound indicates that the requested inbound SMS does not exist.
	ErrSmsNotFound = errors.New("sms not found")

	// ErrSmsNotParsed is returned when an operation requires a parsed
	// extraction but the SMS has never been parsed successfully.
	ErrSmsNotParsed = errors.New("sms has no parsed output")

	// ErrPaymentNotFound indicates that the requested payment does not exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrPaymentNotAttachable is returned when an attach targets a payment
	// that is not in pending or manual_review. Financial attach operations
	// are never best-effort; this must surface loudly.
	ErrPaymentNotAttachable = errors.New("payment is not awaiting confirmation")

	// ErrInvalidResolution is returned when a dismiss carries an unknown
	// resolution code.
	ErrInvalidResolution = errors.New("resolution must be ignore, linked_elsewhere or duplicate")
)

// Merchant callback protocol errors. Each maps to exactly one HTTP status
// and machine-readable code at the handler layer; the validation pipeline
// rejects on the first failure with no partial application.
var (
	ErrMissingFields        = errors.New("missing required fields")
	ErrUnknownStatus        = errors.New("unknown transaction status")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrMerchantNotFound     = errors.New("merchant not found")
	ErrMerchantSuspended    = errors.New("merchant suspended")
	ErrMerchantMismatch     = errors.New("merchant mismatch")
	ErrNonceMismatch        = errors.New("nonce mismatch")
	ErrIssuedAtMismatch     = errors.New("issued_at mismatch")
	ErrNonceExpired         = errors.New("nonce expired")
	ErrTransactionFinalized = errors.New("transaction finalized")
	ErrInvalidSignature     = errors.New("invalid signature")
)

// Prompt registry errors.
var (
	// ErrPromptNotFound indicates that the requested prompt does not exist.
	// Activating a missing prompt fails rather than silently activating
	// nothing.
	ErrPromptNotFound = errors.New("prompt not found")

	// ErrPromptInvalid is returned when a prompt is created without a label
	// or body.
	ErrPromptInvalid = errors.New("prompt label and body are required")
)
