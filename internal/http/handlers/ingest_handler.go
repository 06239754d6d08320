// SMS ingest HTTP handler.
//
// This file exposes the gateway-facing webhook:
//   - POST /webhooks/sms   (accept a raw SMS, fire-and-forget parse)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. The webhook always answers
// quickly; parsing happens asynchronously behind the ingest service.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
	"github.com/paydeck/recon-backend/internal/extract"
	"github.com/paydeck/recon-backend/internal/http/middleware"
	"github.com/paydeck/recon-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// IngestService defines the SMS ingestion gate consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type IngestService interface {
	// Ingest persists one raw SMS and triggers parsing. replayed reports a
	// gateway redelivery served from the receipt store.
	Ingest(ctx context.Context, in services.IngestInput) (smsID string, replayed bool, err error)
}

// MerchantService defines the merchant reconciliation callback processor.
type MerchantService interface {
	// Process runs the full callback validation pipeline and applies the
	// transaction update when every check passes.
	Process(ctx context.Context, cb services.MerchantCallback) (*services.CallbackResult, error)
}

// WorkbenchService defines the operator queries and decisions on ambiguous
// SMS and payments.
type WorkbenchService interface {
	ListSms(ctx context.Context, status string, page, pageSize int) ([]domain.InboundSms, int64, error)
	ListManualReviewPayments(ctx context.Context, page, pageSize int) ([]services.PaymentReview, int64, error)
	Suggest(ctx context.Context, smsID string) ([]domain.Payment, error)
	Attach(ctx context.Context, smsID, paymentID, operator string) error
	Retry(ctx context.Context, smsID string) error
	Dismiss(ctx context.Context, smsID, resolution string, note *string, operator string) error
}

// PromptService defines parser prompt registry operations.
type PromptService interface {
	List(ctx context.Context) ([]domain.ParserPrompt, error)
	Create(ctx context.Context, label, body string, version *int) (*domain.ParserPrompt, error)
	Activate(ctx context.Context, id string) (*domain.ParserPrompt, error)
}

// ParserService defines the dry-run entry point used by the prompt
// live-test endpoint.
type ParserService interface {
	DryRun(ctx context.Context, text, promptBody, promptID string) (*extract.Result, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for ingestion, merchant callbacks, the
// workbench, and the prompt registry. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	ingestSvc   IngestService
	merchantSvc MerchantService
	workbench   WorkbenchService
	promptSvc   PromptService
	parserSvc   ParserService
	db          *gorm.DB
}

// New constructs and returns a Handlers instance bound to the given services.
// The db handle serves read-only aggregate queries (admin stats).
func New(ingestSvc IngestService, merchantSvc MerchantService, wb WorkbenchService, promptSvc PromptService, parserSvc ParserService, db *gorm.DB) *Handlers {
	return &Handlers{
		ingestSvc:   ingestSvc,
		merchantSvc: merchantSvc,
		workbench:   wb,
		promptSvc:   promptSvc,
		parserSvc:   parserSvc,
		db:          db,
	}
}

//
// DTOs
//

// IngestSmsRequest is the JSON payload delivered by the SMS gateway.
type IngestSmsRequest struct {
	// Text is the raw SMS body; required, non-blank.
	Text string `json:"text" binding:"required" example:"You have received 5,000 RWF from John (****123). Ref: AB12CD."`
	// From optionally carries the sender address as reported by the gateway.
	From *string `json:"from,omitempty" example:"M-Money"`
	// ReceivedAt optionally carries the gateway delivery time (RFC 3339).
	ReceivedAt string `json:"received_at,omitempty" example:"2026-08-30T10:15:00Z"`
	// Source optionally names the delivering gateway.
	Source string `json:"source,omitempty" example:"mtn-rw"`
}

// IngestSmsResponse acknowledges an accepted (or replayed) delivery.
type IngestSmsResponse struct {
	OK       bool   `json:"ok" example:"true"`
	SmsID    string `json:"sms_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Replayed bool   `json:"replayed,omitempty" example:"false"`
}

// IngestSms godoc
// @ID          ingestSms
// @Summary     Accept a raw SMS from the gateway
// @Description Persists the SMS and triggers asynchronous parsing. Redeliveries carrying the same Idempotency-Key replay the original sms_id.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key   header  string  false "Gateway delivery key for redelivery dedup"
// @Param       X-Gateway-Source  header  string  false "Delivering gateway identity"  example(mtn-rw)
// @Param       body              body    handlers.IngestSmsRequest  true  "Raw SMS payload"
//
// @Success     200  {object}  handlers.IngestSmsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or invalid payload"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    IngestToken
// @Router      /webhooks/sms [post]
func (h *Handlers) IngestSms(c *gin.Context) {
	var req IngestSmsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	in := services.IngestInput{
		Text:        req.Text,
		FromAddress: req.From,
		ReceivedAt:  req.ReceivedAt,
		Source:      req.Source,
	}
	if in.Source == "" {
		in.Source = middleware.GatewaySource(c)
	}
	if key, present := middleware.GetIdempotencyKey(c); present {
		in.DedupKey = key
	}

	smsID, replayed, err := h.ingestSvc.Ingest(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, services.ErrEmptyText) {
			fail(c, http.StatusBadRequest, ErrCodeEmptyText, "sms text must not be blank")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not persist sms")
		return
	}

	ok(c, http.StatusOK, IngestSmsResponse{OK: true, SmsID: smsID, Replayed: replayed})
}
