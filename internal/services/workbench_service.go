// Package services – WorkbenchService
//
// This file implements the manual reconciliation workbench: the queries an
// operator works from (manual-review SMS, manual-review payments, suggested
// matches) and the three decisions they can apply (attach, retry, dismiss).
// Every decision is a deterministic state transition along the edges the
// data model allows; nothing here is best-effort.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
	"github.com/paydeck/recon-backend/internal/match"
	"github.com/paydeck/recon-backend/internal/repo"
	"github.com/paydeck/recon-backend/internal/utils"
)

// PaymentReview is a manual-review payment enriched with the operator
// context needed to resolve it without reading raw logs.
type PaymentReview struct {
	Payment   domain.Payment    `json:"payment"`
	ParsedSms *domain.ParsedSms `json:"parsed_sms,omitempty"`
	Summary   PaymentSummary    `json:"summary"`
}

// PaymentSummary names the owning domain record of a payment.
type PaymentSummary struct {
	Kind         string  `json:"kind"`
	OrderID      *string `json:"order_id,omitempty"`
	MembershipID *string `json:"membership_id,omitempty"`
	DonationID   *string `json:"donation_id,omitempty"`
}

// WorkbenchService implements operator queries and decisions on ambiguous
// SMS and payments.
type WorkbenchService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Events receives payment-confirmed events from attaches.
	Events ConfirmedEvents
	// Parser re-enters retried SMS into the parse pipeline.
	Parser ParserInvoker
	// Ranker orders equal-amount suggestion candidates by lexical overlap
	// with the SMS text. Nil keeps the store order.
	Ranker *match.Scorer
}

// ListSms returns a page of inbound SMS, newest first. An empty status
// lists everything; the workbench queue passes manual_review.
func (s *WorkbenchService) ListSms(ctx context.Context, status string, page, pageSize int) ([]domain.InboundSms, int64, error) {
	offset, limit := pageBounds(page, pageSize)

	total, err := repo.CountSms(ctx, s.DB, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.InboundSms{}, 0, nil
	}
	items, err := repo.ListSmsPage(ctx, s.DB, status, offset, limit)
	return items, total, err
}

// ListManualReviewPayments returns a page of payments awaiting human
// adjudication, each enriched with its linked extraction and owning-record
// summary.
func (s *WorkbenchService) ListManualReviewPayments(ctx context.Context, page, pageSize int) ([]PaymentReview, int64, error) {
	offset, limit := pageBounds(page, pageSize)

	total, err := repo.CountPayments(ctx, s.DB, domain.PaymentStatusManualReview)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []PaymentReview{}, 0, nil
	}

	payments, err := repo.ListPaymentsPage(ctx, s.DB, domain.PaymentStatusManualReview, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	out := make([]PaymentReview, 0, len(payments))
	for _, p := range payments {
		rev := PaymentReview{
			Payment: p,
			Summary: PaymentSummary{
				Kind:         p.Kind,
				OrderID:      p.OrderID,
				MembershipID: p.MembershipID,
				DonationID:   p.DonationID,
			},
		}
		if p.ParsedSmsID != nil {
			var parsed domain.ParsedSms
			if err := s.DB.WithContext(ctx).Where("id = ?", *p.ParsedSmsID).First(&parsed).Error; err == nil {
				rev.ParsedSms = &parsed
			}
		}
		out = append(out, rev)
	}
	return out, total, nil
}

// Suggest returns candidate payments for an SMS by exact amount and
// currency match against its latest extraction. Selection is a simple,
// explainable filter: false positives here misattribute real money, so no
// candidate is invented by scoring. Within the exact-match shortlist the
// optional Ranker orders candidates by reference-token overlap with the
// message, best first. No extraction means no suggestions.
func (s *WorkbenchService) Suggest(ctx context.Context, smsID string) ([]domain.Payment, error) {
	sms, err := repo.GetInboundSms(ctx, s.DB, smsID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSmsNotFound
		}
		return nil, err
	}
	parsed, err := repo.LatestParsedSms(ctx, s.DB, smsID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []domain.Payment{}, nil
		}
		return nil, err
	}
	payments, err := repo.FindPaymentsByAmount(ctx, s.DB, parsed.Amount, parsed.Currency,
		[]string{domain.PaymentStatusPending, domain.PaymentStatusManualReview})
	if err != nil || s.Ranker == nil || len(payments) < 2 {
		return payments, err
	}

	query := sms.Text + " " + parsed.Ref
	cands := make([]match.Candidate, len(payments))
	byID := make(map[string]domain.Payment, len(payments))
	for i, p := range payments {
		cands[i] = match.Candidate{ID: p.ID, Text: candidateText(p)}
		byID[p.ID] = p
	}
	ranked := s.Ranker.Rank(query, cands)
	out := make([]domain.Payment, len(ranked))
	for i, r := range ranked {
		out[i] = byID[r.ID]
	}
	return out, nil
}

// candidateText flattens a payment's reference material into the text the
// Ranker scores against the SMS.
func candidateText(p domain.Payment) string {
	parts := make([]string, 0, 4)
	for _, id := range []*string{p.OrderID, p.MembershipID, p.DonationID} {
		if id != nil && *id != "" {
			parts = append(parts, *id)
		}
	}
	for _, v := range p.Metadata {
		if s, ok := v.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Attach links an SMS's latest extraction to a payment and confirms it.
//
// Preconditions, each failing loudly:
//   - the SMS exists and has a parsed extraction (ErrSmsNotParsed);
//   - the payment exists and is pending or manual_review
//     (ErrPaymentNotAttachable otherwise; re-attaching a confirmed
//     payment is a conflict, not a no-op).
//
// On success the payment is confirmed, the extraction records the link,
// and the payment-confirmed event fires exactly once. The SMS ingest
// status is left as-is; attaching does not imply re-ingestion.
func (s *WorkbenchService) Attach(ctx context.Context, smsID, paymentID, operator string) error {
	var payment *domain.Payment

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetInboundSms(ctx, tx, smsID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSmsNotFound
			}
			return err
		}
		parsed, err := repo.LatestParsedSms(ctx, tx, smsID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSmsNotParsed
			}
			return err
		}

		payment, err = repo.GetPayment(ctx, tx, paymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}
		if payment.Status != domain.PaymentStatusPending && payment.Status != domain.PaymentStatusManualReview {
			return ErrPaymentNotAttachable
		}

		if err := repo.ConfirmPayment(ctx, tx, paymentID, parsed.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Status changed under us between read and write.
				return ErrPaymentNotAttachable
			}
			return err
		}
		return repo.LinkParsedSms(ctx, tx, parsed.ID, paymentID)
	})
	if err != nil {
		return err
	}

	paymentConfirmedTotal.WithLabelValues(ConfirmSourceAttach).Inc()
	if s.Events != nil {
		s.Events.PaymentConfirmed(ctx, PaymentConfirmedEvent{
			PaymentID: payment.ID,
			Kind:      payment.Kind,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
			Source:    ConfirmSourceAttach,
		})
	}
	return nil
}

// Retry strips any stored manual resolution and sends the SMS back through
// the parser. Calling it on an SMS that never failed is a tolerated no-op
// risk: a duplicate ParsedSms row may appear, and matching always uses the
// newest.
func (s *WorkbenchService) Retry(ctx context.Context, smsID string) error {
	sms, err := repo.GetInboundSms(ctx, s.DB, smsID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSmsNotFound
		}
		return err
	}

	if sms.Metadata != nil {
		delete(sms.Metadata, domain.MetadataKeyResolution)
	}
	sms.IngestStatus = domain.SmsStatusReceived
	if err := repo.UpdateInboundSms(ctx, s.DB, sms); err != nil {
		return err
	}

	if s.Parser != nil {
		return s.Parser.Parse(ctx, smsID)
	}
	return nil
}

// Dismiss records an operator resolution on an ambiguous SMS.
//
// Resolution mapping: linked_elsewhere means the money was accounted for
// through another channel, so the SMS ends as parsed; ignore and duplicate
// end as error, terminal and excluded from future review listings. The
// distinct code survives in the embedded audit record either way.
//
// A later dismiss overwrites an earlier one, but the overwritten decision
// stays visible through the Supersedes field.
func (s *WorkbenchService) Dismiss(ctx context.Context, smsID, resolution string, note *string, operator string) error {
	if !domain.ValidResolution(resolution) {
		return ErrInvalidResolution
	}

	sms, err := repo.GetInboundSms(ctx, s.DB, smsID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSmsNotFound
		}
		return err
	}

	res := domain.ManualResolution{
		Resolution: resolution,
		Note:       note,
		ResolvedBy: operator,
		ResolvedAt: time.Now().UTC(),
	}
	if sms.Metadata == nil {
		sms.Metadata = map[string]any{}
	}
	if prior, ok := sms.Metadata[domain.MetadataKeyResolution].(map[string]any); ok {
		if code, ok := prior["resolution"].(string); ok {
			at, _ := prior["resolved_at"].(string)
			supersedes := code + " @ " + at
			res.Supersedes = &supersedes
		}
	}
	sms.Metadata[domain.MetadataKeyResolution] = map[string]any{
		"resolution":  res.Resolution,
		"note":        res.Note,
		"resolved_by": res.ResolvedBy,
		"resolved_at": res.ResolvedAt.Format(time.RFC3339),
		"supersedes":  res.Supersedes,
	}

	if resolution == domain.ResolutionLinkedElsewhere {
		sms.IngestStatus = domain.SmsStatusParsed
	} else {
		sms.IngestStatus = domain.SmsStatusError
	}
	return repo.UpdateInboundSms(ctx, s.DB, sms)
}

// pageBounds applies the shared listing rules: page >= 1, page size in
// [1,200] with a default of 50.
func pageBounds(page, pageSize int) (offset, limit int) {
	return utils.PageBounds(page, pageSize)
}
