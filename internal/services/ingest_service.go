// Package services – IngestService
//
// This file implements the SMS ingestion gate. It accepts raw gateway
// payloads, normalizes the receipt time, persists the message with ingest
// status "received", and hands the row to the parser asynchronously.
// Ingestion and parsing are deliberately decoupled: a parser or extraction
// outage never blocks the gateway that delivered the SMS.
//
// Gateways redeliver on timeout, so the gate also supports optional
// redelivery deduplication: when the caller supplies an Idempotency-Key,
// replaying the same (source, key) within its TTL returns the originally
// created sms_id without inserting a second row.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/repo"
)

// ParserInvoker is the narrow parser contract the gate (and the workbench
// retry path) depends on.
type ParserInvoker interface {
	Parse(ctx context.Context, smsID string) error
}

// IngestInput is the normalized gateway payload.
type IngestInput struct {
	Text        string
	FromAddress *string
	ReceivedAt  string // RFC 3339; ingest time is used when missing or unparsable
	Source      string
	DedupKey    string // optional gateway Idempotency-Key
}

// IngestService persists inbound SMS and triggers parsing.
type IngestService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Parser is invoked asynchronously for every accepted SMS.
	Parser ParserInvoker

	// ReceiptTTL bounds how long a gateway Idempotency-Key deduplicates.
	ReceiptTTL time.Duration
	// ParseTimeout bounds the detached parse invocation.
	ParseTimeout time.Duration
}

// NewIngestService constructs an IngestService with sane defaults.
func NewIngestService(db *gorm.DB, parser ParserInvoker) *IngestService {
	return &IngestService{
		DB:           db,
		Parser:       parser,
		ReceiptTTL:   24 * time.Hour,
		ParseTimeout: 30 * time.Second,
	}
}

// Ingest validates and persists one raw SMS, then fires the parser without
// waiting for it. It returns the created (or replayed) row ID.
func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (smsID string, replayed bool, err error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return "", false, ErrEmptyText
	}

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = "gateway"
	}

	now := time.Now().UTC()
	receivedAt := now
	if in.ReceivedAt != "" {
		if ts, perr := time.Parse(time.RFC3339, in.ReceivedAt); perr == nil {
			receivedAt = ts.UTC()
		}
	}

	// Redelivery dedup: a known (source, key) replays the original sms_id.
	if in.DedupKey != "" {
		if rec, rerr := repo.GetIngestReceipt(ctx, s.DB, source, in.DedupKey, now); rerr == nil {
			return rec.SmsID, true, nil
		}
	}

	sms, err := repo.CreateInboundSms(ctx, s.DB, text, in.FromAddress, source, receivedAt)
	if err != nil {
		return "", false, err
	}

	if in.DedupKey != "" {
		perr := repo.PutIngestReceipt(ctx, s.DB, source, in.DedupKey, sms.ID, s.ReceiptTTL, now)
		if errors.Is(perr, repo.ErrDuplicate) {
			// Lost a race with a concurrent redelivery; serve the winner.
			if rec, rerr := repo.GetIngestReceipt(ctx, s.DB, source, in.DedupKey, now); rerr == nil && rec.SmsID != sms.ID {
				return rec.SmsID, true, nil
			}
		} else if perr != nil {
			// Dedup is best-effort; the SMS itself is already durable.
			log.Warn().Err(perr).Str("sms_id", sms.ID).Msg("ingest receipt write failed")
		}
	}

	s.parseAsync(sms.ID)
	return sms.ID, false, nil
}

// parseAsync invokes the parser in a detached goroutine with its own
// bounded context, so the ingestion response never waits on the extraction
// service.
func (s *IngestService) parseAsync(smsID string) {
	if s.Parser == nil {
		return
	}
	timeout := s.ParseTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("sms_id", smsID).Msg("parser panic recovered")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.Parser.Parse(ctx, smsID); err != nil {
			log.Warn().Err(err).Str("sms_id", smsID).Msg("async parse failed")
		}
	}()
}
