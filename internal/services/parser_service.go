// Package services – ParserService
//
// This file implements the SMS parser: given an inbound SMS, it resolves
// the active parser prompt, sends a digit-redacted copy of the text to the
// external extraction service, and persists the structured result.
//
// Decision rule: extraction failure of any kind (service error, malformed
// response, missing required fields) degrades the SMS to manual_review with
// an attempts counter and last error in metadata. Extraction success always
// persists a ParsedSms and marks the SMS parsed; confidence alone never
// forces manual review, it only gates the automatic match downstream.
//
// The parser is safe to invoke repeatedly for the same SMS: re-parsing
// creates a new ParsedSms row and never touches the raw text or ID.
//
// Observability: Parse is OpenTelemetry-instrumented; spans carry the SMS
// identifier, never the text.
package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
	"github.com/paydeck/recon-backend/internal/extract"
	"github.com/paydeck/recon-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// defaultPromptBody is used until an operator activates a registry prompt.
const defaultPromptBody = `Extract the payment fields from this mobile-money confirmation SMS.
Return JSON with: amount (integer), currency (ISO code), payer_mask
(sender identifier exactly as written), ref (reference token, or UNKNOWN),
confidence (0..1), timestamp (RFC 3339, when the message states one).
Do not guess amounts; lower the confidence instead.`

// PromptSource resolves the currently active parser prompt. A nil prompt
// with nil error means no prompt is active.
type PromptSource interface {
	Active(ctx context.Context) (*domain.ParserPrompt, error)
}

// ParserService turns raw SMS text into ParsedSms rows and attempts the
// automatic payment match for confident extractions.
type ParserService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Extractor is the external field-extraction call, bounded-latency.
	Extractor extract.Extractor
	// Prompts resolves the active instruction template.
	Prompts PromptSource
	// Events receives payment-confirmed events from automatic matches.
	Events ConfirmedEvents

	// MatchThreshold is the minimum confidence for automatic matching.
	MatchThreshold float64
}

// Parse loads the SMS, runs extraction, persists the outcome, and attempts
// the automatic match. Extraction failures are absorbed into manual_review;
// only store failures propagate as errors.
func (s *ParserService) Parse(ctx context.Context, smsID string) error {
	tr := otel.Tracer("services/ParserService")
	ctx, span := tr.Start(ctx, "Parse",
		trace.WithAttributes(attribute.String("sms.id", smsID)),
	)
	defer span.End()

	sms, err := repo.GetInboundSms(ctx, s.DB, smsID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSmsNotFound
		}
		return err
	}

	body := defaultPromptBody
	if s.Prompts != nil {
		if p, perr := s.Prompts.Active(ctx); perr == nil && p != nil {
			body = p.Body
		}
	}

	// Never send unmasked phone or account numbers outward.
	res, err := s.Extractor.Extract(ctx, body, extract.RedactDigits(sms.Text))
	if err != nil {
		smsParseTotal.WithLabelValues("manual_review").Inc()
		return s.markManualReview(ctx, sms, err)
	}

	parsed, err := repo.CreateParsedSms(ctx, s.DB, &domain.ParsedSms{
		SmsID:      sms.ID,
		Amount:     res.Amount,
		Currency:   res.Currency,
		PayerMask:  res.PayerMask,
		Ref:        res.Ref,
		Confidence: res.Confidence,
		ReportedAt: res.ReportedAt,
	})
	if err != nil {
		return err
	}

	sms.IngestStatus = domain.SmsStatusParsed
	if err := repo.UpdateInboundSms(ctx, s.DB, sms); err != nil {
		return err
	}
	smsParseTotal.WithLabelValues("parsed").Inc()

	s.tryAutoMatch(ctx, parsed)
	return nil
}

// DryRun parses arbitrary sample text with an explicit prompt, touching no
// persisted state. The prompt registry's live-test workflow uses it to
// exercise draft prompts against production-shaped samples.
func (s *ParserService) DryRun(ctx context.Context, text, promptBody, promptID string) (*extract.Result, error) {
	body := promptBody
	if body == "" && promptID != "" {
		p, err := repo.GetPrompt(ctx, s.DB, promptID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrPromptNotFound
			}
			return nil, err
		}
		body = p.Body
	}
	if body == "" {
		body = defaultPromptBody
		if s.Prompts != nil {
			if p, err := s.Prompts.Active(ctx); err == nil && p != nil {
				body = p.Body
			}
		}
	}
	return s.Extractor.Extract(ctx, body, extract.RedactDigits(text))
}

// markManualReview records the failure in metadata and routes the SMS to
// the human queue. The raw text and ID stay untouched.
func (s *ParserService) markManualReview(ctx context.Context, sms *domain.InboundSms, cause error) error {
	if sms.Metadata == nil {
		sms.Metadata = map[string]any{}
	}
	attempts := metadataInt(sms.Metadata, domain.MetadataKeyParseAttempts)
	sms.Metadata[domain.MetadataKeyParseAttempts] = attempts + 1
	sms.Metadata[domain.MetadataKeyLastError] = cause.Error()
	sms.IngestStatus = domain.SmsStatusManualReview

	if err := repo.UpdateInboundSms(ctx, s.DB, sms); err != nil {
		return err
	}
	log.Warn().Err(cause).Str("sms_id", sms.ID).Int("attempts", attempts+1).Msg("sms routed to manual review")
	return nil
}

// metadataInt reads an integer metadata value. JSONMap values arrive as
// json.Number after a database reload and as plain Go numbers before one.
func metadataInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return 0
}

// tryAutoMatch confirms a payment automatically when the extraction is
// confident and exactly one payment matches the amount and currency.
// Anything ambiguous is left for the workbench; a wrong automatic match
// misattributes real money.
func (s *ParserService) tryAutoMatch(ctx context.Context, parsed *domain.ParsedSms) {
	if parsed.Confidence < s.MatchThreshold {
		return
	}

	candidates, err := repo.FindPaymentsByAmount(ctx, s.DB, parsed.Amount, parsed.Currency,
		[]string{domain.PaymentStatusPending, domain.PaymentStatusManualReview})
	if err != nil {
		log.Warn().Err(err).Str("parsed_id", parsed.ID).Msg("auto-match candidate lookup failed")
		return
	}
	if len(candidates) != 1 {
		return
	}
	payment := candidates[0]

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.ConfirmPayment(ctx, tx, payment.ID, parsed.ID); err != nil {
			return err
		}
		return repo.LinkParsedSms(ctx, tx, parsed.ID, payment.ID)
	})
	if err != nil {
		log.Warn().Err(err).Str("payment_id", payment.ID).Msg("auto-match confirm failed")
		return
	}

	smsParseTotal.WithLabelValues("auto_matched").Inc()
	paymentConfirmedTotal.WithLabelValues(ConfirmSourceAutoMatch).Inc()
	if s.Events != nil {
		s.Events.PaymentConfirmed(ctx, PaymentConfirmedEvent{
			PaymentID: payment.ID,
			Kind:      payment.Kind,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
			Source:    ConfirmSourceAutoMatch,
		})
	}
}
