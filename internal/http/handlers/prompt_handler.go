// Parser prompt registry HTTP handlers.
//
// This file exposes the prompt management surface:
//   - GET  /admin/prompts                 (list, newest version first)
//   - POST /admin/prompts                 (create new version, inactive)
//   - POST /admin/prompts/{id}/activate   (make one version active)
//   - POST /admin/prompts/test            (dry-run a prompt against sample text)
//
// Activation is the only way a prompt affects production parsing; creation
// never flips the active flag, and the test endpoint touches no state.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/paydeck/recon-backend/internal/domain"
	"github.com/paydeck/recon-backend/internal/services"
)

//
// DTOs
//

// CreatePromptRequest is the JSON payload adding a prompt version.
type CreatePromptRequest struct {
	// Label names the version for operators.
	Label string `json:"label" binding:"required" example:"tighter ref extraction"`
	// Body is the full instruction text sent to the extraction service.
	Body string `json:"body" binding:"required"`
	// Version optionally pins an explicit version number; omitted, the
	// registry assigns max+1.
	Version *int `json:"version,omitempty" example:"7"`
}

// TestPromptRequest is the JSON payload for a dry-run extraction.
type TestPromptRequest struct {
	// Text is the sample SMS to parse; required, redacted before leaving
	// the service.
	Text string `json:"text" binding:"required"`
	// PromptBody optionally supplies an unsaved draft prompt.
	PromptBody string `json:"prompt_body,omitempty"`
	// PromptID optionally selects a stored prompt; ignored when
	// prompt_body is set. Both empty means the active prompt.
	PromptID string `json:"prompt_id,omitempty"`
}

// ListPromptsResponse wraps the registry contents.
type ListPromptsResponse struct {
	Prompts []domain.ParserPrompt `json:"prompts"`
}

// ListPrompts godoc
// @ID          listPrompts
// @Summary     List parser prompts
// @Description Returns every prompt version, newest first, with the active flag visible.
// @Tags        Prompts
// @Produce     json
//
// @Success     200  {object}  handlers.ListPromptsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    AdminToken
// @Router      /admin/prompts [get]
func (h *Handlers) ListPrompts(c *gin.Context) {
	items, err := h.promptSvc.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list prompts")
		return
	}
	ok(c, http.StatusOK, ListPromptsResponse{Prompts: items})
}

// CreatePrompt godoc
// @ID          createPrompt
// @Summary     Add a prompt version
// @Description Stores a new prompt version without activating it. Version defaults to max+1 when omitted.
// @Tags        Prompts
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreatePromptRequest  true  "Prompt version"
//
// @Success     201  {object}  domain.ParserPrompt
// @Failure     400  {object}  handlers.ErrorResponse  "Missing label or body"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    AdminToken
// @Router      /admin/prompts [post]
func (h *Handlers) CreatePrompt(c *gin.Context) {
	var req CreatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	p, err := h.promptSvc.Create(c.Request.Context(), req.Label, req.Body, req.Version)
	if err != nil {
		if errors.Is(err, services.ErrPromptInvalid) {
			fail(c, http.StatusBadRequest, ErrCodePromptInvalid, "label and body are required")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not create prompt")
		return
	}
	ok(c, http.StatusCreated, p)
}

// ActivatePrompt godoc
// @ID          activatePrompt
// @Summary     Activate a prompt version
// @Description Makes the given version the single active prompt; any previously active version is deactivated atomically.
// @Tags        Prompts
// @Produce     json
//
// @Param       id  path  string  true  "Prompt ID"
//
// @Success     200  {object}  domain.ParserPrompt
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     404  {object}  handlers.ErrorResponse  "Prompt not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Security    AdminToken
// @Router      /admin/prompts/{id}/activate [post]
func (h *Handlers) ActivatePrompt(c *gin.Context) {
	p, err := h.promptSvc.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrPromptNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "prompt not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not activate prompt")
		return
	}
	ok(c, http.StatusOK, p)
}

// TestPrompt godoc
// @ID          testPrompt
// @Summary     Dry-run a prompt against sample text
// @Description Runs extraction with the given (or active) prompt without persisting anything. The sample text is digit-redacted before leaving the service.
// @Tags        Prompts
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.TestPromptRequest  true  "Sample text and prompt selection"
//
// @Success     200  {object}  extract.Result
// @Failure     400  {object}  handlers.ErrorResponse  "Missing text"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid bearer token"
// @Failure     404  {object}  handlers.ErrorResponse  "Prompt not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Extraction service unavailable"
// @Security    AdminToken
// @Router      /admin/prompts/test [post]
func (h *Handlers) TestPrompt(c *gin.Context) {
	var req TestPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}

	res, err := h.parserSvc.DryRun(c.Request.Context(), req.Text, req.PromptBody, req.PromptID)
	if err != nil {
		if errors.Is(err, services.ErrPromptNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "prompt not found")
			return
		}
		fail(c, http.StatusBadGateway, ErrCodeInternal, "extraction failed: "+err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}
