// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used by the
// admin dashboard to size the review queues without paging through them.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
)

// QueueStats holds the depths of the reconciliation work queues.
type QueueStats struct {
	SmsReceived       int64 `json:"sms_received"`
	SmsManualReview   int64 `json:"sms_manual_review"`
	PaymentsPending   int64 `json:"payments_pending"`
	PaymentsManual    int64 `json:"payments_manual_review"`
	PaymentsConfirmed int64 `json:"payments_confirmed"`
}

// ReconciliationStats returns the current queue depths: unparsed SMS
// backlog, SMS awaiting human review, and payments per status.
func ReconciliationStats(ctx context.Context, db *gorm.DB) (*QueueStats, error) {
	var st QueueStats
	var err error
	if st.SmsReceived, err = CountSms(ctx, db, domain.SmsStatusReceived); err != nil {
		return nil, err
	}
	if st.SmsManualReview, err = CountSms(ctx, db, domain.SmsStatusManualReview); err != nil {
		return nil, err
	}
	if st.PaymentsPending, err = CountPayments(ctx, db, domain.PaymentStatusPending); err != nil {
		return nil, err
	}
	if st.PaymentsManual, err = CountPayments(ctx, db, domain.PaymentStatusManualReview); err != nil {
		return nil, err
	}
	if st.PaymentsConfirmed, err = CountPayments(ctx, db, domain.PaymentStatusConfirmed); err != nil {
		return nil, err
	}
	return &st, nil
}
