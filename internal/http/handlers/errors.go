// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., invalid_signature, nonce_expired) carry the
//     merchant reconciliation protocol's rejection reasons, which clients must
//     branch on to decide between retrying, re-signing, or giving up.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//   {
//     "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//     "code": "invalid_signature",
//     "message": "callback signature mismatch"
//   }

package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Ingest / workbench:
	ErrCodeEmptyText         = "empty_text"
	ErrCodeSmsNotParsed      = "sms_not_parsed"
	ErrCodeNotAttachable     = "payment_not_attachable"
	ErrCodeInvalidResolution = "invalid_resolution"
	ErrCodePromptInvalid     = "prompt_invalid"
	ErrCodeMethodNotAllowed  = "method_not_allowed"

	// Merchant reconciliation protocol:
	ErrCodeMissingFields        = "missing_fields"
	ErrCodeUnknownStatus        = "unknown_status"
	ErrCodeInvalidAmount        = "invalid_amount"
	ErrCodeMerchantSuspended    = "merchant_suspended"
	ErrCodeMerchantMismatch     = "merchant_mismatch"
	ErrCodeNonceMismatch        = "nonce_mismatch"
	ErrCodeIssuedAtMismatch     = "issued_at_mismatch"
	ErrCodeNonceExpired         = "nonce_expired"
	ErrCodeTransactionFinalized = "transaction_finalized"
	ErrCodeInvalidSignature     = "invalid_signature"
)
