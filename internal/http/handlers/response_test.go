package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func envelopeRouter(t *testing.T, rid string, logBuf *bytes.Buffer) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", rid)
		if logBuf != nil {
			logger := zerolog.New(logBuf)
			c.Set("logger", &logger)
		}
		c.Next()
	})
	return r
}

func Test_fail_ServerError_LogsAndKeepsEnvelope(t *testing.T) {
	var buf bytes.Buffer
	r := envelopeRouter(t, "rid-500", &buf)

	r.POST("/webhooks/sms", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not persist sms")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/sms", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.RequestID != "rid-500" || resp.Code != ErrCodeInternal || resp.Message != "could not persist sms" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("5xx must be logged at error level, got: %s", buf.String())
	}
}

func Test_fail_ClientError_StaysOutOfErrorLog(t *testing.T) {
	var buf bytes.Buffer
	r := envelopeRouter(t, "rid-409", &buf)

	r.POST("/webhooks/merchant", func(c *gin.Context) {
		fail(c, http.StatusConflict, ErrCodeNonceMismatch, "nonce does not match the issued nonce")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/merchant", nil))

	if w.Code != http.StatusConflict {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Code != ErrCodeNonceMismatch {
		t.Fatalf("code=%q", resp.Code)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx must not hit the error log, got: %s", buf.String())
	}
}

func Test_Fail_And_SuccessHelpers(t *testing.T) {
	r := envelopeRouter(t, "rid-404", nil)

	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.POST("/created", func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"ok": true, "sms_id": "sms-1"})
	})
	r.DELETE("/gone", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("json 404: %v", err)
	}
	if er.RequestID != "rid-404" || er.Code != ErrCodeNotFound {
		t.Fatalf("unexpected 404 body: %+v", er)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/created", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json 201: %v", err)
	}
	if body["ok"] != true || body["sms_id"] != "sms-1" {
		t.Fatalf("unexpected created body: %#v", body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/gone", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("expected empty 204, got %d body=%q", w.Code, w.Body.String())
	}
}
