// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// InboundSms and ParsedSms models.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a row is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateInboundSms inserts a new raw SMS row with ingest status "received".
// The row ID is a randomly generated UUID and timestamps are UTC.
func CreateInboundSms(ctx context.Context, db *gorm.DB, text string, fromAddress *string, source string, receivedAt time.Time) (*domain.InboundSms, error) {
	sms := &domain.InboundSms{
		ID:           uuid.NewString(),
		Text:         text,
		FromAddress:  fromAddress,
		Source:       source,
		ReceivedAt:   receivedAt.UTC(),
		IngestStatus: domain.SmsStatusReceived,
		Metadata:     datatypes.JSONMap{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(sms).Error; err != nil {
		return nil, err
	}
	return sms, nil
}

// GetInboundSms fetches a single raw SMS by ID, or ErrNotFound if missing.
func GetInboundSms(ctx context.Context, db *gorm.DB, id string) (*domain.InboundSms, error) {
	var sms domain.InboundSms
	if err := db.WithContext(ctx).Where("id = ?", id).First(&sms).Error; err != nil {
		return nil, err
	}
	return &sms, nil
}

// UpdateInboundSms persists the ingest status and metadata of an existing
// row. Text and ID are deliberately not touched so repeated parser runs can
// never corrupt the raw message.
func UpdateInboundSms(ctx context.Context, db *gorm.DB, sms *domain.InboundSms) error {
	res := db.WithContext(ctx).
		Model(&domain.InboundSms{}).
		Where("id = ?", sms.ID).
		Updates(map[string]any{
			"ingest_status": sms.IngestStatus,
			"metadata":      sms.Metadata,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListSmsPage returns a page of inbound SMS ordered by receipt time
// descending (newest first). An empty status lists all rows.
func ListSmsPage(ctx context.Context, db *gorm.DB, status string, offset, limit int) ([]domain.InboundSms, error) {
	var out []domain.InboundSms
	q := db.WithContext(ctx).Order("received_at DESC, id DESC").Offset(offset).Limit(limit)
	if status != "" {
		q = q.Where("ingest_status = ?", status)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountSms returns the total number of inbound SMS rows, optionally scoped
// to one ingest status.
func CountSms(ctx context.Context, db *gorm.DB, status string) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.InboundSms{})
	if status != "" {
		q = q.Where("ingest_status = ?", status)
	}
	err := q.Count(&total).Error
	return total, err
}

// CreateParsedSms inserts a new extraction row for the given SMS. A new row
// is created per parse attempt; existing rows are never mutated here.
func CreateParsedSms(ctx context.Context, db *gorm.DB, p *domain.ParsedSms) (*domain.ParsedSms, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// LatestParsedSms returns the newest extraction for smsID, or ErrNotFound
// when the SMS has never been parsed successfully.
func LatestParsedSms(ctx context.Context, db *gorm.DB, smsID string) (*domain.ParsedSms, error) {
	var p domain.ParsedSms
	err := db.WithContext(ctx).
		Where("sms_id = ?", smsID).
		Order("created_at DESC, id DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LinkParsedSms records the payment a parsed extraction was matched to.
func LinkParsedSms(ctx context.Context, db *gorm.DB, parsedID, paymentID string) error {
	res := db.WithContext(ctx).
		Model(&domain.ParsedSms{}).
		Where("id = ?", parsedID).
		Update("matched_entity", paymentID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
