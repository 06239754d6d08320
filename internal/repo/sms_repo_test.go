package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
)

func TestCreateAndGetInboundSms(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	from := "+250788123456"
	received := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	sms, err := CreateInboundSms(ctx, db, "received 5,000 RWF", &from, "mtn-rw", received)
	if err != nil {
		t.Fatalf("CreateInboundSms: %v", err)
	}
	if sms.ID == "" || sms.IngestStatus != domain.SmsStatusReceived {
		t.Fatalf("bad row: %+v", sms)
	}

	got, err := GetInboundSms(ctx, db, sms.ID)
	if err != nil {
		t.Fatalf("GetInboundSms: %v", err)
	}
	if got.Text != "received 5,000 RWF" || got.Source != "mtn-rw" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.FromAddress == nil || *got.FromAddress != from {
		t.Fatalf("from_address lost: %+v", got.FromAddress)
	}
	if !got.ReceivedAt.Equal(received) {
		t.Fatalf("received_at = %v; want %v", got.ReceivedAt, received)
	}
}

func TestGetInboundSms_Missing(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetInboundSms(context.Background(), db, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateInboundSms_StatusAndMetadataOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sms, _ := CreateInboundSms(ctx, db, "original body", nil, "gw", time.Now().UTC())
	sms.IngestStatus = domain.SmsStatusManualReview
	sms.Metadata = map[string]any{domain.MetadataKeyLastError: "timeout"}
	sms.Text = "tampered" // must not be persisted

	if err := UpdateInboundSms(ctx, db, sms); err != nil {
		t.Fatalf("UpdateInboundSms: %v", err)
	}

	got, _ := GetInboundSms(ctx, db, sms.ID)
	if got.IngestStatus != domain.SmsStatusManualReview {
		t.Errorf("status = %q", got.IngestStatus)
	}
	if got.Metadata[domain.MetadataKeyLastError] != "timeout" {
		t.Errorf("metadata = %+v", got.Metadata)
	}
	if got.Text != "original body" {
		t.Errorf("raw text was mutated to %q", got.Text)
	}
}

func TestUpdateInboundSms_Missing(t *testing.T) {
	db := newTestDB(t)
	sms := &domain.InboundSms{ID: "ghost", IngestStatus: domain.SmsStatusError}
	if err := UpdateInboundSms(context.Background(), db, sms); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestListSmsPage_OrderFilterAndPaging(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		sms, err := CreateInboundSms(ctx, db, "msg", nil, "gw", base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
		ids = append(ids, sms.ID)
	}
	// Move the middle one out of the listed status.
	mid, _ := GetInboundSms(ctx, db, ids[1])
	mid.IngestStatus = domain.SmsStatusError
	if err := UpdateInboundSms(ctx, db, mid); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	all, err := ListSmsPage(ctx, db, "", 0, 10)
	if err != nil {
		t.Fatalf("ListSmsPage: %v", err)
	}
	if len(all) != 3 || all[0].ID != ids[2] || all[2].ID != ids[0] {
		t.Fatalf("unfiltered order wrong: %+v", all)
	}

	received, err := ListSmsPage(ctx, db, domain.SmsStatusReceived, 0, 10)
	if err != nil {
		t.Fatalf("ListSmsPage(received): %v", err)
	}
	if len(received) != 2 {
		t.Fatalf("filtered length = %d; want 2", len(received))
	}

	page2, err := ListSmsPage(ctx, db, "", 2, 2)
	if err != nil {
		t.Fatalf("ListSmsPage page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != ids[0] {
		t.Fatalf("page 2 = %+v; want oldest row only", page2)
	}

	if n, _ := CountSms(ctx, db, ""); n != 3 {
		t.Errorf("CountSms(all) = %d", n)
	}
	if n, _ := CountSms(ctx, db, domain.SmsStatusError); n != 1 {
		t.Errorf("CountSms(error) = %d", n)
	}
}

func TestLatestParsedSms_NewestWins(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sms, _ := CreateInboundSms(ctx, db, "msg", nil, "gw", time.Now().UTC())
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	if _, err := CreateParsedSms(ctx, db, &domain.ParsedSms{
		SmsID: sms.ID, Amount: 100, Currency: "RWF", Ref: "OLD", Confidence: 0.4,
		CreatedAt: base,
	}); err != nil {
		t.Fatalf("first parse: %v", err)
	}
	newer, err := CreateParsedSms(ctx, db, &domain.ParsedSms{
		SmsID: sms.ID, Amount: 200, Currency: "RWF", Ref: "NEW", Confidence: 0.9,
		CreatedAt: base.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}

	got, err := LatestParsedSms(ctx, db, sms.ID)
	if err != nil {
		t.Fatalf("LatestParsedSms: %v", err)
	}
	if got.ID != newer.ID || got.Ref != "NEW" {
		t.Fatalf("latest = %+v; want the newer extraction", got)
	}
}

func TestLatestParsedSms_NeverParsed(t *testing.T) {
	db := newTestDB(t)
	sms, _ := CreateInboundSms(context.Background(), db, "msg", nil, "gw", time.Now().UTC())
	if _, err := LatestParsedSms(context.Background(), db, sms.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLinkParsedSms(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	sms, _ := CreateInboundSms(ctx, db, "msg", nil, "gw", time.Now().UTC())
	parsed, _ := CreateParsedSms(ctx, db, &domain.ParsedSms{
		SmsID: sms.ID, Amount: 100, Currency: "RWF", Ref: "R", Confidence: 0.9,
	})

	if err := LinkParsedSms(ctx, db, parsed.ID, "pay-1"); err != nil {
		t.Fatalf("LinkParsedSms: %v", err)
	}
	got, _ := LatestParsedSms(ctx, db, sms.ID)
	if got.MatchedEntity == nil || *got.MatchedEntity != "pay-1" {
		t.Fatalf("matched_entity = %v", got.MatchedEntity)
	}

	if err := LinkParsedSms(ctx, db, "ghost", "pay-1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for unknown extraction, got %v", err)
	}
}
