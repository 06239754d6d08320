// Merchant reconciliation HTTP handler.
//
// This file exposes the merchant-facing callback:
//   - POST /webhooks/merchant   (HMAC-signed transaction status update)
//
// The handler is a thin translation layer over the validation pipeline in
// services.MerchantService: each sentinel rejection maps to exactly one
// (status, code) pair so merchant integrations can branch programmatically.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paydeck/recon-backend/internal/services"
)

// MerchantCallbackResponse acknowledges a processed callback. Updated is
// false when an identical callback was replayed and no state changed.
type MerchantCallbackResponse struct {
	OK      bool   `json:"ok" example:"true"`
	ID      string `json:"id" example:"tx-93b1"`
	Status  string `json:"status" example:"captured"`
	Updated bool   `json:"updated" example:"true"`
}

// merchantErrorMap pairs each pipeline sentinel with its HTTP translation.
// Order is irrelevant; sentinels are disjoint.
var merchantErrorMap = []struct {
	err    error
	status int
	code   string
	msg    string
}{
	{services.ErrMissingFields, http.StatusBadRequest, ErrCodeMissingFields, "merchantId, transactionId, status, issuedAt, nonce and signature are required"},
	{services.ErrUnknownStatus, http.StatusBadRequest, ErrCodeUnknownStatus, "status must be one of: authorized, captured, failed, reconciled, cancelled"},
	{services.ErrInvalidAmount, http.StatusBadRequest, ErrCodeInvalidAmount, "amountMinor must be a non-negative integer"},
	{services.ErrTransactionNotFound, http.StatusNotFound, ErrCodeNotFound, "transaction not found"},
	{services.ErrMerchantNotFound, http.StatusNotFound, ErrCodeNotFound, "merchant not found"},
	{services.ErrMerchantSuspended, http.StatusForbidden, ErrCodeMerchantSuspended, "merchant is suspended"},
	{services.ErrMerchantMismatch, http.StatusForbidden, ErrCodeMerchantMismatch, "transaction does not belong to this merchant"},
	{services.ErrNonceMismatch, http.StatusConflict, ErrCodeNonceMismatch, "nonce does not match the issued nonce"},
	{services.ErrIssuedAtMismatch, http.StatusConflict, ErrCodeIssuedAtMismatch, "issuedAt does not match the issued timestamp"},
	{services.ErrNonceExpired, http.StatusGone, ErrCodeNonceExpired, "nonce has expired"},
	{services.ErrTransactionFinalized, http.StatusConflict, ErrCodeTransactionFinalized, "transaction is already in a final status"},
	{services.ErrInvalidSignature, http.StatusUnauthorized, ErrCodeInvalidSignature, "callback signature mismatch"},
}

// MerchantCallback godoc
// @ID          merchantCallback
// @Summary     Apply a signed merchant transaction update
// @Description Validates the HMAC-signed callback against the issued nonce and applies the status transition. Identical replays are acknowledged without writes.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       body  body  services.MerchantCallback  true  "Signed callback payload"
//
// @Success     200  {object}  handlers.MerchantCallbackResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing fields, unknown status, or invalid amount"
// @Failure     401  {object}  handlers.ErrorResponse  "Signature mismatch"
// @Failure     403  {object}  handlers.ErrorResponse  "Suspended merchant or ownership mismatch"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown merchant or transaction"
// @Failure     409  {object}  handlers.ErrorResponse  "Nonce or issuedAt mismatch, or transaction already finalized"
// @Failure     410  {object}  handlers.ErrorResponse  "Nonce expired"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /webhooks/merchant [post]
func (h *Handlers) MerchantCallback(c *gin.Context) {
	var cb services.MerchantCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.merchantSvc.Process(c.Request.Context(), cb)
	if err != nil {
		for _, m := range merchantErrorMap {
			if errors.Is(err, m.err) {
				fail(c, m.status, m.code, m.msg)
				return
			}
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not process callback")
		return
	}

	ok(c, http.StatusOK, MerchantCallbackResponse{
		OK:      true,
		ID:      res.ID,
		Status:  res.Status,
		Updated: res.Updated,
	})
}
