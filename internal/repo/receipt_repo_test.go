package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIngestReceipt_PutAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	if err := PutIngestReceipt(ctx, db, "mtn-rw", "k-1", "sms-1", time.Hour, now); err != nil {
		t.Fatalf("PutIngestReceipt: %v", err)
	}

	rec, err := GetIngestReceipt(ctx, db, "mtn-rw", "k-1", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("GetIngestReceipt: %v", err)
	}
	if rec.SmsID != "sms-1" {
		t.Fatalf("sms_id = %q", rec.SmsID)
	}
}

func TestIngestReceipt_KeyScopedBySource(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := PutIngestReceipt(ctx, db, "mtn-rw", "k-1", "sms-1", time.Hour, now); err != nil {
		t.Fatalf("put: %v", err)
	}
	// Same key from a different gateway is a distinct tuple.
	if err := PutIngestReceipt(ctx, db, "airtel-rw", "k-1", "sms-2", time.Hour, now); err != nil {
		t.Fatalf("put other source: %v", err)
	}
	if _, err := GetIngestReceipt(ctx, db, "unknown-gw", "k-1", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong source, got %v", err)
	}
}

func TestIngestReceipt_EmptyKey(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetIngestReceipt(context.Background(), db, "gw", "  ", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for blank key, got %v", err)
	}
}

func TestIngestReceipt_ExpiryExcluded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	if err := PutIngestReceipt(ctx, db, "gw", "k-exp", "sms-1", time.Minute, now); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := GetIngestReceipt(ctx, db, "gw", "k-exp", now.Add(2*time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired receipt must be invisible, got %v", err)
	}
}

func TestIngestReceipt_DuplicateTuple(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := PutIngestReceipt(ctx, db, "gw", "k-dup", "sms-1", time.Hour, now); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if err := PutIngestReceipt(ctx, db, "gw", "k-dup", "sms-2", time.Hour, now); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// The original winner's sms_id survives.
	rec, _ := GetIngestReceipt(ctx, db, "gw", "k-dup", now)
	if rec.SmsID != "sms-1" {
		t.Fatalf("sms_id = %q; want the first writer's", rec.SmsID)
	}
}
