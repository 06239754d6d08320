// Package domain defines the persistence models for the payment
// reconciliation pipeline: inbound SMS, parsed extractions, payments,
// merchant transactions, and parser prompts. These types are mapped with
// GORM and form the core data layer of the application.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Ingest statuses for InboundSms. Transitions are strictly:
// received → {parsed | manual_review | error};
// manual_review → received (operator retry) or error (operator dismiss).
// Rows are never deleted; they are the audit trail.
const (
	SmsStatusReceived     = "received"
	SmsStatusParsed       = "parsed"
	SmsStatusManualReview = "manual_review"
	SmsStatusError        = "error"
)

// Payment statuses. The only recovery edge is manual_review → confirmed;
// manual_review → failed is terminal.
const (
	PaymentStatusPending      = "pending"
	PaymentStatusConfirmed    = "confirmed"
	PaymentStatusManualReview = "manual_review"
	PaymentStatusFailed       = "failed"
)

// Payment kinds, identifying the owning domain record.
const (
	PaymentKindTicket     = "ticket"
	PaymentKindMembership = "membership"
	PaymentKindShop       = "shop"
	PaymentKindDonation   = "donation"
)

// Merchant transaction statuses. failed, reconciled and cancelled are
// final: once reached, only an identical repeated callback is accepted.
const (
	TxStatusAuthorized = "authorized"
	TxStatusCaptured   = "captured"
	TxStatusFailed     = "failed"
	TxStatusReconciled = "reconciled"
	TxStatusCancelled  = "cancelled"
)

// Merchant account statuses.
const (
	MerchantStatusActive    = "active"
	MerchantStatusSuspended = "suspended"
)

// Manual resolution codes an operator may apply to an ambiguous SMS.
const (
	ResolutionIgnore          = "ignore"
	ResolutionLinkedElsewhere = "linked_elsewhere"
	ResolutionDuplicate       = "duplicate"
)

// MetadataKeyResolution is the reserved InboundSms.Metadata key under which
// the last ManualResolution is embedded.
const MetadataKeyResolution = "manual_resolution"

// Parser bookkeeping keys kept in InboundSms.Metadata.
const (
	MetadataKeyParseAttempts = "parse_attempts"
	MetadataKeyLastError     = "last_error"
)

// ValidTxStatus reports whether s is one of the five merchant transaction
// statuses.
func ValidTxStatus(s string) bool {
	switch s {
	case TxStatusAuthorized, TxStatusCaptured, TxStatusFailed, TxStatusReconciled, TxStatusCancelled:
		return true
	}
	return false
}

// FinalTxStatus reports whether s is one of the three final transaction
// statuses.
func FinalTxStatus(s string) bool {
	switch s {
	case TxStatusFailed, TxStatusReconciled, TxStatusCancelled:
		return true
	}
	return false
}

// ValidResolution reports whether s is a recognised manual resolution code.
func ValidResolution(s string) bool {
	switch s {
	case ResolutionIgnore, ResolutionLinkedElsewhere, ResolutionDuplicate:
		return true
	}
	return false
}

// InboundSms is one raw message received from a GSM gateway.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Text: the raw message body as forwarded by the gateway.
//   - FromAddress: sender MSISDN or short code, when the gateway reports one.
//   - Source: gateway identity label (free text).
//   - ReceivedAt: receipt time, normalized to ingest time when missing.
//   - IngestStatus: pipeline state, see the SmsStatus* constants.
//   - Metadata: open key/value map for parser retry counters and operator
//     resolution annotations (reserved keys above).
type InboundSms struct {
	ID           string            `json:"id"            gorm:"type:char(36);primaryKey"`
	Text         string            `json:"text"          gorm:"type:text;not null"`
	FromAddress  *string           `json:"from_msisdn,omitempty" gorm:"type:varchar(32)"`
	Source       string            `json:"source"        gorm:"type:varchar(64);not null;default:''"`
	ReceivedAt   time.Time         `json:"received_at"   gorm:"not null;index:idx_sms_status_received,priority:2"`
	IngestStatus string            `json:"ingest_status" gorm:"type:varchar(16);not null;default:'received';check:ingest_status IN ('received','parsed','manual_review','error');index:idx_sms_status_received,priority:1"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TableName returns the database table name for InboundSms.
func (InboundSms) TableName() string { return "inbound_sms" }

// ParsedSms is a structured extraction attached to an InboundSms. A new row
// is created per parse attempt; rows are immutable except for the
// MatchedEntity link written when the extraction is attached to a payment.
//
// Fields:
//   - SmsID: the InboundSms this extraction belongs to.
//   - Amount: non-negative integer currency amount (minor-unit-free).
//   - Currency: ISO-like code, upper-cased.
//   - PayerMask: partial, privacy-redacted sender identifier.
//   - Ref: free-text reference token; "UNKNOWN" when the extractor found none.
//   - Confidence: extractor-reported scalar in [0,1], produced once.
//   - MatchedEntity: payment ID once linked, nil otherwise.
//   - ReportedAt: message-reported time, when present in the text.
type ParsedSms struct {
	ID            string     `json:"id"          gorm:"type:char(36);primaryKey"`
	SmsID         string     `json:"sms_id"      gorm:"type:char(36);not null;index:idx_parsed_sms,priority:1"`
	Amount        int64      `json:"amount"      gorm:"not null;check:amount >= 0;index"`
	Currency      string     `json:"currency"    gorm:"type:varchar(8);not null"`
	PayerMask     string     `json:"payer_mask"  gorm:"type:varchar(64);not null;default:''"`
	Ref           string     `json:"ref"         gorm:"type:varchar(128);not null;default:'UNKNOWN'"`
	Confidence    float64    `json:"confidence"  gorm:"not null"`
	MatchedEntity *string    `json:"matched_entity,omitempty" gorm:"type:char(36)"`
	ReportedAt    *time.Time `json:"reported_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"  gorm:"index:idx_parsed_sms,priority:2"`

	// Sms is the raw message this extraction was produced from.
	Sms InboundSms `json:"-" gorm:"foreignKey:SmsID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ParsedSms.
func (ParsedSms) TableName() string { return "parsed_sms" }

// Payment is a pending or resolved financial obligation (ticket order,
// membership, shop order, donation). Status is monotonic except for the
// manual_review → confirmed recovery edge.
//
// The owning domain record is referenced through the optional OrderID /
// MembershipID / DonationID keys; those tables live in the consuming
// subsystems and are not modelled here.
type Payment struct {
	ID           string            `json:"id"       gorm:"type:char(36);primaryKey"`
	Amount       int64             `json:"amount"   gorm:"not null;check:amount >= 0;index"`
	Currency     string            `json:"currency" gorm:"type:varchar(8);not null"`
	Kind         string            `json:"kind"     gorm:"type:varchar(16);not null;check:kind IN ('ticket','membership','shop','donation')"`
	Status       string            `json:"status"   gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','confirmed','manual_review','failed');index"`
	OrderID      *string           `json:"order_id,omitempty"      gorm:"type:char(36)"`
	MembershipID *string           `json:"membership_id,omitempty" gorm:"type:char(36)"`
	DonationID   *string           `json:"donation_id,omitempty"   gorm:"type:char(36)"`
	ParsedSmsID  *string           `json:"parsed_sms_id,omitempty" gorm:"type:char(36)"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TableName returns the database table name for Payment.
func (Payment) TableName() string { return "payments" }

// ManualResolution is the audit record of a human decision on an ambiguous
// InboundSms. It is embedded in InboundSms.Metadata under
// MetadataKeyResolution rather than stored in its own table. When a
// resolution overwrites an earlier one, Supersedes keeps the prior decision
// visible in the audit trail.
type ManualResolution struct {
	Resolution string    `json:"resolution"`
	Note       *string   `json:"note,omitempty"`
	ResolvedBy string    `json:"resolved_by"`
	ResolvedAt time.Time `json:"resolved_at"`
	Supersedes *string   `json:"supersedes,omitempty"`
}

// Merchant is the signing principal for transaction callbacks. HMACSecret
// is never serialized outward.
type Merchant struct {
	ID              string    `json:"id"     gorm:"type:char(36);primaryKey"`
	Status          string    `json:"status" gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','suspended')"`
	HMACSecret      string    `json:"-"      gorm:"type:varchar(128);not null"`
	NonceTTLSeconds int       `json:"nonce_ttl_seconds" gorm:"not null;default:900"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName returns the database table name for Merchant.
func (Merchant) TableName() string { return "merchants" }

// MerchantTransaction is a transaction lifecycle row owned by one Merchant.
// The nonce is assigned once at creation and stays valid until
// NonceExpiresAt; multiple status callbacks may legitimately share it
// within that window.
type MerchantTransaction struct {
	ID             string     `json:"id"          gorm:"type:char(36);primaryKey"`
	MerchantID     string     `json:"merchant_id" gorm:"type:char(36);not null;index"`
	Status         string     `json:"status"      gorm:"type:varchar(16);not null;default:'authorized';check:status IN ('authorized','captured','failed','reconciled','cancelled')"`
	AmountMinor    *int64     `json:"amount_minor,omitempty"`
	Currency       *string    `json:"currency,omitempty" gorm:"type:varchar(8)"`
	Nonce          string     `json:"-"           gorm:"type:varchar(128);not null"`
	NonceExpiresAt time.Time  `json:"nonce_expires_at" gorm:"not null"`
	NonceUsedAt    *time.Time `json:"nonce_used_at,omitempty"`
	IssuedAt       int64      `json:"issued_at"   gorm:"not null"` // epoch seconds
	Signature      *string    `json:"-"           gorm:"type:varchar(128)"`
	ReconciledAt   *time.Time `json:"reconciled_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Merchant is the owning signing principal.
	Merchant Merchant `json:"-" gorm:"foreignKey:MerchantID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for MerchantTransaction.
func (MerchantTransaction) TableName() string { return "merchant_transactions" }

// ParserPrompt is a versioned instruction template for the SMS parser.
// At most one prompt is active at a time; activation is atomic.
type ParserPrompt struct {
	ID        string    `json:"id"      gorm:"type:char(36);primaryKey"`
	Label     string    `json:"label"   gorm:"type:varchar(128);not null"`
	Body      string    `json:"body"    gorm:"type:text;not null"`
	Version   int       `json:"version" gorm:"not null;index"`
	IsActive  bool      `json:"is_active" gorm:"not null;default:false;index"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for ParserPrompt.
func (ParserPrompt) TableName() string { return "parser_prompts" }
