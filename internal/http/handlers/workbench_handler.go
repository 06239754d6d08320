// Workbench HTTP handlers.
//
// This file exposes the operator-facing reconciliation surface:
//   - GET  /admin/sms                     (list SMS, optional status filter)
//   - GET  /admin/payments/review         (manual-review payments, enriched)
//   - GET  /admin/sms/{id}/suggestions    (candidate payments for an SMS)
//   - POST /admin/sms/{id}/attach         (link extraction to a payment)
//   - POST /admin/sms/{id}/retry          (re-enter the parse pipeline)
//   - POST /admin/sms/{id}/dismiss        (record a manual resolution)
//   - GET  /admin/stats                   (queue depths)
//
// Every mutating endpoint records the acting operator (X-Admin-User) so
// manual decisions stay auditable.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/paydeck/recon-backend/internal/domain"
	"github.com/paydeck/recon-backend/internal/http/middleware"
	"github.com/paydeck/recon-backend/internal/repo"
	"github.com/paydeck/recon-backend/internal/services"
	"github.com/paydeck/recon-backend/internal/utils"
)

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSmsResponse wraps a page of inbound SMS and pagination information.
type ListSmsResponse struct {
	Sms        []domain.InboundSms `json:"sms"`
	Pagination Pagination          `json:"pagination"`
}

// ListPaymentReviewsResponse wraps a page of manual-review payments.
type ListPaymentReviewsResponse struct {
	Payments   []services.PaymentReview `json:"payments"`
	Pagination Pagination               `json:"pagination"`
}

// SuggestionsResponse lists candidate payments for one SMS.
type SuggestionsResponse struct {
	SmsID       string           `json:"sms_id"`
	Suggestions []domain.Payment `json:"suggestions"`
}

// AttachRequest is the JSON payload linking an SMS extraction to a payment.
type AttachRequest struct {
	// PaymentID identifies the payment to confirm.
	PaymentID string `json:"payment_id" binding:"required" example:"pay-8812"`
}

// DismissRequest is the JSON payload recording a manual resolution.
type DismissRequest struct {
	// Resolution is one of: ignore, duplicate, linked_elsewhere.
	Resolution string `json:"resolution" binding:"required" example:"duplicate"`
	// Note optionally explains the decision for the audit trail.
	Note *string `json:"note,omitempty" example:"same ref as sms 7f21"`
}

//
// Helpers
//

// clampPagination parses page and page_size query params and applies the
// shared listing bounds.
func clampPagination(c *gin.Context) (page, pageSize int) {
	page = utils.ClampPage(utils.AtoiDefault(c.Query("page"), 1))
	pageSize = utils.ClampPageSize(utils.AtoiDefault(c.Query("page_size"), utils.DefaultPageSize))
	return
}

func paginationFor(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// smsNotFound maps workbench sentinel errors shared by most SMS endpoints;
// it reports whether the error was handled.
func smsNotFound(c *gin.Context, err error) bool {
	if errors.Is(err, services.ErrSmsNotFound) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "sms not found")
		return true
	}
	return false
}

//
// Handlers
//

// ListSms godoc
// @ID          listSms
// @Summary     List inbound SMS (paginated)
// @Description Returns a page of inbound SMS, newest first. Filter by ingest status with ?status=manual_review.
// @Tags        Workbench
// @Produce     json
//
// @Param       status     query  string  false "Ingest status filter"  Enums(received, parsed, manual_review, error)
// @Param       page       query  int     false "Page number"           minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"        minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.ListSmsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    AdminToken
// @Router      /admin/sms [get]
func (h *Handlers) ListSms(c *gin.Context) {
	page, pageSize := clampPagination(c)
	status := strings.TrimSpace(c.Query("status"))

	items, total, err := h.workbench.ListSms(c.Request.Context(), status, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list sms")
		return
	}
	ok(c, http.StatusOK, ListSmsResponse{Sms: items, Pagination: paginationFor(page, pageSize, total)})
}

// ListPaymentReviews godoc
// @ID          listPaymentReviews
// @Summary     List manual-review payments (paginated)
// @Description Returns payments awaiting human adjudication, each enriched with its linked extraction and owning-record summary.
// @Tags        Workbench
// @Produce     json
//
// @Param       page       query  int  false "Page number"    minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page" minimum(1) maximum(200) default(50)
//
// @Success     200  {object}  handlers.ListPaymentReviewsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    AdminToken
// @Router      /admin/payments/review [get]
func (h *Handlers) ListPaymentReviews(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.workbench.ListManualReviewPayments(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list payments")
		return
	}
	ok(c, http.StatusOK, ListPaymentReviewsResponse{Payments: items, Pagination: paginationFor(page, pageSize, total)})
}

// SuggestMatches godoc
// @ID          suggestMatches
// @Summary     Suggest candidate payments for an SMS
// @Description Returns open payments whose amount and currency exactly match the SMS's latest extraction. An SMS without an extraction yields an empty list.
// @Tags        Workbench
// @Produce     json
//
// @Param       id  path  string  true  "SMS ID"
//
// @Success     200  {object}  handlers.SuggestionsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     404  {object}  handlers.ErrorResponse  "SMS not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    AdminToken
// @Router      /admin/sms/{id}/suggestions [get]
func (h *Handlers) SuggestMatches(c *gin.Context) {
	smsID := c.Param("id")
	items, err := h.workbench.Suggest(c.Request.Context(), smsID)
	if err != nil {
		if smsNotFound(c, err) {
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute suggestions")
		return
	}
	ok(c, http.StatusOK, SuggestionsResponse{SmsID: smsID, Suggestions: items})
}

// AttachSms godoc
// @ID          attachSms
// @Summary     Attach an SMS extraction to a payment
// @Description Confirms the payment and records the link on the extraction. Re-attaching a confirmed payment is a conflict, not a no-op.
// @Tags        Workbench
// @Accept      json
// @Produce     json
//
// @Param       X-Admin-User  header  string  false "Acting operator"  example(alice@example.com)
// @Param       id            path    string  true  "SMS ID"
// @Param       body          body    handlers.AttachRequest  true  "Target payment"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Missing payment_id"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     404  {object}  handlers.ErrorResponse  "SMS or payment not found"
// @Failure     409  {object}  handlers.ErrorResponse  "SMS not parsed or payment not attachable"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    AdminToken
// @Router      /admin/sms/{id}/attach [post]
func (h *Handlers) AttachSms(c *gin.Context) {
	var req AttachRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PaymentID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "payment_id required")
		return
	}

	err := h.workbench.Attach(c.Request.Context(), c.Param("id"), req.PaymentID, middleware.Operator(c))
	switch {
	case err == nil:
		noContent(c)
	case smsNotFound(c, err):
	case errors.Is(err, services.ErrPaymentNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "payment not found")
	case errors.Is(err, services.ErrSmsNotParsed):
		fail(c, http.StatusConflict, ErrCodeSmsNotParsed, "sms has no parsed extraction")
	case errors.Is(err, services.ErrPaymentNotAttachable):
		fail(c, http.StatusConflict, ErrCodeNotAttachable, "payment is not pending or in manual review")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not attach sms")
	}
}

// RetrySms godoc
// @ID          retrySms
// @Summary     Re-run parsing for an SMS
// @Description Strips any stored manual resolution, resets the SMS to received, and re-enters the parse pipeline synchronously.
// @Tags        Workbench
// @Produce     json
//
// @Param       id  path  string  true  "SMS ID"
//
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     404  {object}  handlers.ErrorResponse  "SMS not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    AdminToken
// @Router      /admin/sms/{id}/retry [post]
func (h *Handlers) RetrySms(c *gin.Context) {
	err := h.workbench.Retry(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		noContent(c)
	case smsNotFound(c, err):
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not retry sms")
	}
}

// DismissSms godoc
// @ID          dismissSms
// @Summary     Record a manual resolution for an SMS
// @Description Marks the SMS resolved as ignore, duplicate, or linked_elsewhere. A later dismiss supersedes an earlier one; the overwritten decision stays in the audit record.
// @Tags        Workbench
// @Accept      json
// @Produce     json
//
// @Param       X-Admin-User  header  string  false "Acting operator"  example(alice@example.com)
// @Param       id            path    string  true  "SMS ID"
// @Param       body          body    handlers.DismissRequest  true  "Resolution"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown resolution"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     404  {object}  handlers.ErrorResponse  "SMS not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    AdminToken
// @Router      /admin/sms/{id}/dismiss [post]
func (h *Handlers) DismissSms(c *gin.Context) {
	var req DismissRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.workbench.Dismiss(c.Request.Context(), c.Param("id"), req.Resolution, req.Note, middleware.Operator(c))
	switch {
	case err == nil:
		noContent(c)
	case smsNotFound(c, err):
	case errors.Is(err, services.ErrInvalidResolution):
		fail(c, http.StatusBadRequest, ErrCodeInvalidResolution, "resolution must be one of: ignore, duplicate, linked_elsewhere")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not dismiss sms")
	}
}

// QueueStats godoc
// @ID          queueStats
// @Summary     Reconciliation queue depths
// @Description Returns the unparsed SMS backlog, manual-review queues, and payment status counts.
// @Tags        Workbench
// @Produce     json
//
// @Success     200  {object}  repo.QueueStats
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    AdminToken
// @Router      /admin/stats [get]
func (h *Handlers) QueueStats(c *gin.Context) {
	st, err := repo.ReconciliationStats(c.Request.Context(), h.db)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not compute stats")
		return
	}
	ok(c, http.StatusOK, st)
}
