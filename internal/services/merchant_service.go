// Package services – MerchantService
//
// This file implements the merchant transaction reconciliation protocol: a
// webhook-driven state machine fed entirely by externally signed callbacks.
// There is no polling and no sequence numbering; correctness rests on
// statuses being final once reached and identical callbacks being
// idempotent no-ops.
//
// The validation pipeline runs in a fixed order and rejects hard on the
// first failure with no partial application. The signature covers status
// and amount through the canonical string, so observing one valid callback
// never lets a party claim a different outcome for the same transaction.
// The nonce alone cannot provide that, because it is deliberately stable
// across a transaction's callbacks within its validity window.
package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
	"github.com/paydeck/recon-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// canonicalDelimiter joins the canonical string fields. Fixed forever:
// changing it invalidates every merchant integration.
const canonicalDelimiter = "|"

// MerchantCallback is the decoded callback request. Numeric fields arrive
// as JSON numbers, so they are held as pointers to float64 until validated
// and truncated.
type MerchantCallback struct {
	MerchantID    string   `json:"merchantId"`
	TransactionID string   `json:"transactionId"`
	Status        string   `json:"status"`
	AmountMinor   *float64 `json:"amountMinor,omitempty"`
	Currency      *string  `json:"currency,omitempty"`
	IssuedAt      *float64 `json:"issuedAt,omitempty"`
	Nonce         string   `json:"nonce"`
	Signature     string   `json:"signature"`
}

// CallbackResult reports the outcome of an accepted callback. Updated is
// false when the idempotence short-circuit served a replay without writes.
type CallbackResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Updated bool   `json:"updated"`
}

// MerchantService validates and applies merchant transaction callbacks.
type MerchantService struct {
	// DB is the GORM handle used for persistence. The read-validate-write
	// sequence runs inside one transaction; the store serializes access per
	// row.
	DB *gorm.DB

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewMerchantService constructs a MerchantService.
func NewMerchantService(db *gorm.DB) *MerchantService {
	return &MerchantService{DB: db, now: time.Now}
}

// Process runs the full validation pipeline for one callback and, when
// everything holds, applies the state transition. Every returned error is
// one of the protocol sentinels in errors.go; no write happens on any of
// them.
func (s *MerchantService) Process(ctx context.Context, cb MerchantCallback) (*CallbackResult, error) {
	tr := otel.Tracer("services/MerchantService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(
			attribute.String("merchant.id", cb.MerchantID),
			attribute.String("transaction.id", cb.TransactionID),
		),
	)
	defer span.End()

	// 1) Presence.
	if cb.MerchantID == "" || cb.TransactionID == "" || cb.Status == "" ||
		cb.Signature == "" || cb.Nonce == "" || cb.IssuedAt == nil {
		merchantCallbackTotal.WithLabelValues("rejected").Inc()
		return nil, ErrMissingFields
	}

	// 2) Status vocabulary.
	if !domain.ValidTxStatus(cb.Status) {
		merchantCallbackTotal.WithLabelValues("rejected").Inc()
		return nil, ErrUnknownStatus
	}

	// 3) Amount: finite, non-negative, and within int64 after truncation.
	// float64(math.MaxInt64) rounds up to 2^63, which already overflows,
	// so the bound check must be strict.
	var amount *int64
	if cb.AmountMinor != nil {
		v := *cb.AmountMinor
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v >= float64(math.MaxInt64) {
			merchantCallbackTotal.WithLabelValues("rejected").Inc()
			return nil, ErrInvalidAmount
		}
		n := int64(math.Trunc(v))
		amount = &n
	}

	issuedAt := int64(math.Trunc(*cb.IssuedAt))

	var result *CallbackResult
	err := s.DB.WithContext(ctx).Transaction(func(txh *gorm.DB) error {
		// 4) Transaction and merchant lookup.
		mtx, err := repo.GetMerchantTransaction(ctx, txh, cb.TransactionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		merchant, err := repo.GetMerchant(ctx, txh, mtx.MerchantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMerchantNotFound
			}
			return err
		}
		if merchant.Status != domain.MerchantStatusActive {
			return ErrMerchantSuspended
		}

		// 5) Transport-layer ownership check. Defense in depth: the
		// signature is already scoped per transaction, but a valid
		// signature for merchant A must not be replayable against a
		// transaction owned by merchant B.
		if mtx.MerchantID != cb.MerchantID {
			return ErrMerchantMismatch
		}

		// 6) Nonce equality. Nonces are assigned at transaction creation
		// and never rotated here.
		if cb.Nonce != mtx.Nonce {
			return ErrNonceMismatch
		}

		// 7) issuedAt equality at second resolution.
		if issuedAt != mtx.IssuedAt {
			return ErrIssuedAtMismatch
		}

		// 8) Nonce expiry is the sole cancellation mechanism.
		if mtx.NonceExpiresAt.Before(s.now()) {
			return ErrNonceExpired
		}

		// 9) Final states accept only an identical repeat.
		if domain.FinalTxStatus(mtx.Status) && cb.Status != mtx.Status {
			return ErrTransactionFinalized
		}

		// 10) Signature over the canonical string, keyed by the merchant
		// secret, using the transaction's own stored nonce.
		currency := ""
		if cb.Currency != nil {
			currency = *cb.Currency
		}
		expected := SignCallback(merchant.HMACSecret, cb.MerchantID, cb.TransactionID,
			cb.Status, amount, currency, mtx.Nonce, issuedAt)
		if !hmac.Equal([]byte(expected), []byte(cb.Signature)) {
			return ErrInvalidSignature
		}

		// 11) Idempotence short-circuit: same signature and status means the
		// event was already applied, make no writes.
		if mtx.Signature != nil && *mtx.Signature == cb.Signature && mtx.Status == cb.Status {
			result = &CallbackResult{ID: mtx.ID, Status: mtx.Status, Updated: false}
			return nil
		}

		// 12) Apply.
		now := s.now().UTC()
		up := repo.TxUpdate{
			Status:      cb.Status,
			Signature:   cb.Signature,
			AmountMinor: amount,
		}
		if cb.Currency != nil {
			c := strings.ToUpper(strings.TrimSpace(*cb.Currency))
			up.Currency = &c
		}
		if mtx.NonceUsedAt == nil {
			up.NonceUsedAt = &now
		}
		if cb.Status == domain.TxStatusReconciled {
			up.ReconciledAt = &now
		}
		if err := repo.ApplyTransactionUpdate(ctx, txh, mtx.ID, up); err != nil {
			return err
		}
		result = &CallbackResult{ID: mtx.ID, Status: cb.Status, Updated: true}
		return nil
	})
	if err != nil {
		merchantCallbackTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if result.Updated {
		merchantCallbackTotal.WithLabelValues("applied").Inc()
	} else {
		merchantCallbackTotal.WithLabelValues("replayed").Inc()
	}
	return result, nil
}

// SignCallback computes the expected callback signature: an HMAC-SHA256
// over the canonical string, keyed by the merchant secret, encoded as
// unpadded URL-safe base64. Exported so integration tooling and tests can
// produce valid callbacks.
func SignCallback(secret, merchantID, transactionID, status string, amountMinor *int64, currency, nonce string, issuedAt int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonicalString(merchantID, transactionID, status, amountMinor, currency, nonce, issuedAt)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// canonicalString joins the signed fields with a fixed delimiter in fixed
// order, so signer and verifier always hash identical bytes. Absent amount
// and currency contribute empty strings; currency is upper-cased.
func canonicalString(merchantID, transactionID, status string, amountMinor *int64, currency, nonce string, issuedAt int64) string {
	amount := ""
	if amountMinor != nil {
		amount = strconv.FormatInt(*amountMinor, 10)
	}
	return strings.Join([]string{
		merchantID,
		transactionID,
		status,
		amount,
		strings.ToUpper(strings.TrimSpace(currency)),
		nonce,
		strconv.FormatInt(issuedAt, 10),
	}, canonicalDelimiter)
}
