// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Merchant and
// MerchantTransaction rows used by the callback reconciliation protocol.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
)

// GetMerchant fetches a merchant by ID, or ErrNotFound if missing.
func GetMerchant(ctx context.Context, db *gorm.DB, id string) (*domain.Merchant, error) {
	var m domain.Merchant
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMerchantTransaction fetches a transaction by ID, or ErrNotFound.
func GetMerchantTransaction(ctx context.Context, db *gorm.DB, id string) (*domain.MerchantTransaction, error) {
	var tx domain.MerchantTransaction
	if err := db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

// TxUpdate carries the field set written by an accepted callback. Pointers
// are only applied when non-nil; NonceUsedAt and ReconciledAt are set once
// and never cleared.
type TxUpdate struct {
	Status       string
	Signature    string
	AmountMinor  *int64
	Currency     *string
	NonceUsedAt  *time.Time
	ReconciledAt *time.Time
}

// ApplyTransactionUpdate writes the accepted callback fields to the
// transaction row in one UPDATE.
func ApplyTransactionUpdate(ctx context.Context, db *gorm.DB, id string, up TxUpdate) error {
	fields := map[string]any{
		"status":    up.Status,
		"signature": up.Signature,
	}
	if up.AmountMinor != nil {
		fields["amount_minor"] = *up.AmountMinor
	}
	if up.Currency != nil {
		fields["currency"] = *up.Currency
	}
	if up.NonceUsedAt != nil {
		fields["nonce_used_at"] = *up.NonceUsedAt
	}
	if up.ReconciledAt != nil {
		fields["reconciled_at"] = *up.ReconciledAt
	}
	res := db.WithContext(ctx).
		Model(&domain.MerchantTransaction{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
