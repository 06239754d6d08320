// Package extract integrates the external natural-language extraction
// service that turns free-text mobile-money SMS into structured payment
// fields. The service is treated as a black box: prompt + text in,
// structured fields + confidence out, fallible. Callers must be prepared
// for any call to fail and degrade to manual review.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

// Errors returned by extractors. ErrBadResponse covers both transport-level
// malformed payloads and responses missing required fields; the parser
// treats either the same way (manual review).
var (
	ErrUnavailable = errors.New("extraction service unavailable")
	ErrBadResponse = errors.New("extraction response malformed")
)

// Result is the structured extraction for one SMS text.
type Result struct {
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	PayerMask  string     `json:"payer_mask"`
	Ref        string     `json:"ref"`
	Confidence float64    `json:"confidence"`
	ReportedAt *time.Time `json:"reported_at,omitempty"`
}

// Extractor is the contract the SMS parser programs against. Extract must
// honour ctx cancellation and return within a bounded time; a hung
// implementation would otherwise stall the parse pipeline.
type Extractor interface {
	Extract(ctx context.Context, prompt, text string) (*Result, error)
}

// HTTPExtractor calls a JSON-over-HTTP extraction endpoint. The request
// body is {"prompt": ..., "text": ...}; the expected response carries
// amount, currency, payer_mask, ref, confidence and an optional RFC 3339
// timestamp.
type HTTPExtractor struct {
	URL    string
	Client *http.Client
}

// NewHTTPExtractor builds an HTTPExtractor with an enforced per-call
// timeout. The client timeout is the hard upper bound even when the caller
// passes a background context.
func NewHTTPExtractor(url string, timeout time.Duration) *HTTPExtractor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPExtractor{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// extractionResponse mirrors the provider wire format. Pointer fields let
// us distinguish absent from zero when validating.
type extractionResponse struct {
	Amount     *float64 `json:"amount"`
	Currency   *string  `json:"currency"`
	PayerMask  string   `json:"payer_mask"`
	Ref        string   `json:"ref"`
	Confidence *float64 `json:"confidence"`
	Timestamp  string   `json:"timestamp"`
}

// Extract posts the prompt and (already redacted) text to the service and
// validates the response into a Result.
func (e *HTTPExtractor) Extract(ctx context.Context, prompt, text string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt, "text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	var raw extractionResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return validate(raw)
}

// validate converts the wire response into a Result, rejecting payloads
// that miss required fields or carry nonsense values.
func validate(raw extractionResponse) (*Result, error) {
	if raw.Amount == nil || raw.Currency == nil || raw.Confidence == nil {
		return nil, fmt.Errorf("%w: missing required fields", ErrBadResponse)
	}
	if *raw.Amount < 0 || *raw.Amount != float64(int64(*raw.Amount)) {
		return nil, fmt.Errorf("%w: amount %v", ErrBadResponse, *raw.Amount)
	}

	code := strings.ToUpper(strings.TrimSpace(*raw.Currency))
	if _, err := currency.ParseISO(code); err != nil {
		return nil, fmt.Errorf("%w: currency %q", ErrBadResponse, code)
	}

	conf := *raw.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	ref := strings.TrimSpace(raw.Ref)
	if ref == "" {
		ref = "UNKNOWN"
	}

	res := &Result{
		Amount:     int64(*raw.Amount),
		Currency:   code,
		PayerMask:  strings.TrimSpace(raw.PayerMask),
		Ref:        ref,
		Confidence: conf,
	}
	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, raw.Timestamp); err == nil {
			utc := ts.UTC()
			res.ReportedAt = &utc
		}
	}
	return res, nil
}
