// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Payment
// model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
)

// CreatePayment inserts a new pending payment row. Amount is a non-negative
// integer in the platform's minor-unit-free representation.
func CreatePayment(ctx context.Context, db *gorm.DB, p *domain.Payment) (*domain.Payment, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = domain.PaymentStatusPending
	}
	if p.Metadata == nil {
		p.Metadata = datatypes.JSONMap{}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// GetPayment fetches a single payment by ID, or ErrNotFound if missing.
func GetPayment(ctx context.Context, db *gorm.DB, id string) (*domain.Payment, error) {
	var p domain.Payment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPaymentsPage returns a page of payments in the given status, newest
// first.
func ListPaymentsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.Payment, error) {
	var out []domain.Payment
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountPayments returns the number of payments in the given status.
func CountPayments(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("status = ?", status).
		Count(&total).Error
	return total, err
}

// FindPaymentsByAmount returns payments with exactly the given amount and
// currency whose status is in statuses, oldest first. Exact-amount match is
// the deliberate suggestion heuristic: a scored ranking here would invite
// misattributed money.
func FindPaymentsByAmount(ctx context.Context, db *gorm.DB, amount int64, currency string, statuses []string) ([]domain.Payment, error) {
	var out []domain.Payment
	err := db.WithContext(ctx).
		Where("amount = ? AND currency = ? AND status IN ?", amount, currency, statuses).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ConfirmPayment transitions a payment to confirmed and links the parsed
// extraction it was matched from. The status guard makes the write
// conditional: a payment already confirmed or failed is not touched and
// ErrNotFound is returned, which callers treat as a conflict.
func ConfirmPayment(ctx context.Context, db *gorm.DB, id, parsedSmsID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("id = ? AND status IN ?", id, []string{domain.PaymentStatusPending, domain.PaymentStatusManualReview}).
		Updates(map[string]any{
			"status":        domain.PaymentStatusConfirmed,
			"parsed_sms_id": parsedSmsID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
