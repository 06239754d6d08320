// Package services – outward domain events.
//
// The reconciliation core emits exactly one event: "payment confirmed".
// Ticketing, membership and donation subsystems consume it to run their own
// side effects (issue a pass, activate a membership). Delivery semantics
// beyond "raised at most once per confirmation" belong to the consumer.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Confirmation sources, recorded on the event for audit.
const (
	ConfirmSourceAutoMatch = "auto_match"
	ConfirmSourceAttach    = "manual_attach"
)

// PaymentConfirmedEvent describes one payment that transitioned to
// confirmed, with the resolved amount and the path that confirmed it.
type PaymentConfirmedEvent struct {
	PaymentID string `json:"payment_id"`
	Kind      string `json:"kind"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Source    string `json:"source"`
}

// ConfirmedEvents is the seam through which confirmations leave this core.
// Implementations must tolerate being called from request goroutines and
// must not block for long.
type ConfirmedEvents interface {
	PaymentConfirmed(ctx context.Context, ev PaymentConfirmedEvent)
}

// LogEvents is the default publisher: it emits the event as a structured
// log line, which the hosting platform tails into its delivery channel.
type LogEvents struct{}

// PaymentConfirmed logs the confirmation.
func (LogEvents) PaymentConfirmed(ctx context.Context, ev PaymentConfirmedEvent) {
	log.Info().
		Str("payment_id", ev.PaymentID).
		Str("kind", ev.Kind).
		Int64("amount", ev.Amount).
		Str("currency", ev.Currency).
		Str("source", ev.Source).
		Msg("payment confirmed")
}
