// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the
// IngestReceipt model used to deduplicate SMS gateway redeliveries.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
)

// ErrDuplicate indicates that an ingest receipt already exists for the
// given (source, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetIngestReceipt returns a non-expired receipt or ErrNotFound.
func GetIngestReceipt(ctx context.Context, db *gorm.DB, source, key string, now time.Time) (*domain.IngestReceipt, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrNotFound
	}
	var rec domain.IngestReceipt
	err := db.WithContext(ctx).
		Where("source = ? AND key = ? AND expires_at > ?", source, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutIngestReceipt records the sms_id produced for (source, key). A
// concurrent insert of the same tuple surfaces as ErrDuplicate so the
// caller can fall back to reading the winner's receipt.
func PutIngestReceipt(ctx context.Context, db *gorm.DB, source, key, smsID string, ttl time.Duration, now time.Time) error {
	rec := &domain.IngestReceipt{
		ID:        uuid.NewString(),
		Source:    source,
		Key:       key,
		SmsID:     smsID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	err := db.WithContext(ctx).Create(rec).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
		return ErrDuplicate
	}
	return err
}
