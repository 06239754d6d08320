// Package services – domain metrics.
//
// Counters for the reconciliation outcomes that matter operationally: how
// often parsing degrades to manual review, how merchant callbacks resolve,
// and how payments get confirmed. Label sets are small fixed vocabularies
// to keep cardinality bounded.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// smsParseTotal counts parse attempts by outcome:
	// parsed | manual_review | auto_matched.
	smsParseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_parse_total",
			Help: "Total SMS parse attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// merchantCallbackTotal counts merchant callbacks by outcome:
	// applied | replayed | rejected.
	merchantCallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchant_callback_total",
			Help: "Total merchant transaction callbacks by outcome.",
		},
		[]string{"outcome"},
	)

	// paymentConfirmedTotal counts confirmations by source:
	// auto_match | manual_attach.
	paymentConfirmedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_confirmed_total",
			Help: "Total payments confirmed by confirmation source.",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(smsParseTotal, merchantCallbackTotal, paymentConfirmedTotal)
}
