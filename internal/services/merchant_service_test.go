package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
)

const testSecret = "sekrit-hmac-key"

func seedMerchantTx(t *testing.T, db *gorm.DB, merchantStatus, txStatus string, nonceExpiry time.Time) (*domain.Merchant, *domain.MerchantTransaction) {
	t.Helper()

	m := &domain.Merchant{
		ID:              "m1",
		Status:          merchantStatus,
		HMACSecret:      testSecret,
		NonceTTLSeconds: 900,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("seed merchant: %v", err)
	}
	tx := &domain.MerchantTransaction{
		ID:             "tx1",
		MerchantID:     m.ID,
		Status:         txStatus,
		Nonce:          "nonce-abc",
		NonceExpiresAt: nonceExpiry,
		IssuedAt:       1_700_000_000,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return m, tx
}

func signedCallback(status string, amount *int64, currency string) MerchantCallback {
	sig := SignCallback(testSecret, "m1", "tx1", status, amount, currency, "nonce-abc", 1_700_000_000)
	issued := float64(1_700_000_000)
	cb := MerchantCallback{
		MerchantID:    "m1",
		TransactionID: "tx1",
		Status:        status,
		IssuedAt:      &issued,
		Nonce:         "nonce-abc",
		Signature:     sig,
	}
	if amount != nil {
		f := float64(*amount)
		cb.AmountMinor = &f
	}
	if currency != "" {
		cb.Currency = &currency
	}
	return cb
}

func reloadTx(t *testing.T, db *gorm.DB) *domain.MerchantTransaction {
	t.Helper()
	var tx domain.MerchantTransaction
	if err := db.Where("id = ?", "tx1").First(&tx).Error; err != nil {
		t.Fatalf("reload tx: %v", err)
	}
	return &tx
}

func TestProcess_ValidCallback_AppliesUpdate(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	amount := int64(100000)
	res, err := svc.Process(context.Background(), signedCallback(domain.TxStatusCaptured, &amount, "rwf"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Updated || res.Status != domain.TxStatusCaptured {
		t.Fatalf("unexpected result: %+v", res)
	}

	tx := reloadTx(t, db)
	if tx.Status != domain.TxStatusCaptured {
		t.Errorf("status = %q; want captured", tx.Status)
	}
	if tx.AmountMinor == nil || *tx.AmountMinor != 100000 {
		t.Errorf("amountMinor = %v; want 100000", tx.AmountMinor)
	}
	if tx.Currency == nil || *tx.Currency != "RWF" {
		t.Errorf("currency = %v; want RWF", tx.Currency)
	}
	if tx.NonceUsedAt == nil {
		t.Errorf("nonceUsedAt not set on first successful use")
	}
	if tx.Signature == nil {
		t.Errorf("signature not stored")
	}
}

func TestProcess_IdenticalReplay_NoWrites(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	amount := int64(5000)
	cb := signedCallback(domain.TxStatusCaptured, &amount, "RWF")
	if _, err := svc.Process(context.Background(), cb); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	before := reloadTx(t, db)

	res, err := svc.Process(context.Background(), cb)
	if err != nil {
		t.Fatalf("replay Process: %v", err)
	}
	if res.Updated {
		t.Fatalf("replay reported updated=true")
	}

	after := reloadTx(t, db)
	if !after.UpdatedAt.Equal(before.UpdatedAt) || after.Status != before.Status {
		t.Fatalf("store changed on replay: before=%+v after=%+v", before, after)
	}
}

func TestProcess_StatusProgressionSharesNonce(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	amount := int64(100000)
	if _, err := svc.Process(context.Background(), signedCallback(domain.TxStatusCaptured, &amount, "RWF")); err != nil {
		t.Fatalf("captured: %v", err)
	}

	// New signature over the new canonical string, same nonce.
	res, err := svc.Process(context.Background(), signedCallback(domain.TxStatusReconciled, &amount, "RWF"))
	if err != nil {
		t.Fatalf("reconciled: %v", err)
	}
	if !res.Updated {
		t.Fatalf("expected updated=true")
	}

	tx := reloadTx(t, db)
	if tx.Status != domain.TxStatusReconciled {
		t.Errorf("status = %q; want reconciled", tx.Status)
	}
	if tx.ReconciledAt == nil {
		t.Errorf("reconciledAt not set")
	}
}

func TestProcess_BadSignature_Rejected(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	amount := int64(100)
	cb := signedCallback(domain.TxStatusCaptured, &amount, "RWF")
	cb.Signature = "forged"

	if _, err := svc.Process(context.Background(), cb); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v; want ErrInvalidSignature", err)
	}
	if tx := reloadTx(t, db); tx.Status != domain.TxStatusAuthorized || tx.Signature != nil {
		t.Fatalf("store changed on bad signature: %+v", tx)
	}
}

func TestProcess_SignatureCoversAmount(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	// Sign for 100, claim 999999: tampered amount must fail.
	amount := int64(100)
	cb := signedCallback(domain.TxStatusCaptured, &amount, "RWF")
	tampered := float64(999999)
	cb.AmountMinor = &tampered

	if _, err := svc.Process(context.Background(), cb); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v; want ErrInvalidSignature", err)
	}
}

func TestProcess_FinalizedConflict(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusCancelled, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	if _, err := svc.Process(context.Background(), signedCallback(domain.TxStatusCaptured, nil, "")); !errors.Is(err, ErrTransactionFinalized) {
		t.Fatalf("err = %v; want ErrTransactionFinalized", err)
	}
	if tx := reloadTx(t, db); tx.Status != domain.TxStatusCancelled {
		t.Fatalf("store changed on finalized conflict: %+v", tx)
	}
}

func TestProcess_FinalizedIdenticalRepeatAllowed(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	cb := signedCallback(domain.TxStatusFailed, nil, "")
	if _, err := svc.Process(context.Background(), cb); err != nil {
		t.Fatalf("first failed callback: %v", err)
	}
	res, err := svc.Process(context.Background(), cb)
	if err != nil {
		t.Fatalf("repeat of same final status: %v", err)
	}
	if res.Updated {
		t.Fatalf("identical final repeat must be a no-op replay")
	}
}

func TestProcess_NonceExpired(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(-time.Minute))
	svc := NewMerchantService(db)

	// Correct signature, expired nonce: still rejected.
	if _, err := svc.Process(context.Background(), signedCallback(domain.TxStatusCaptured, nil, "")); !errors.Is(err, ErrNonceExpired) {
		t.Fatalf("err = %v; want ErrNonceExpired", err)
	}
	if tx := reloadTx(t, db); tx.Status != domain.TxStatusAuthorized {
		t.Fatalf("store changed on expired nonce: %+v", tx)
	}
}

func TestProcess_NonceMismatch(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	cb := signedCallback(domain.TxStatusCaptured, nil, "")
	cb.Nonce = "other-nonce"
	if _, err := svc.Process(context.Background(), cb); !errors.Is(err, ErrNonceMismatch) {
		t.Fatalf("err = %v; want ErrNonceMismatch", err)
	}
}

func TestProcess_IssuedAtMismatch(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	cb := signedCallback(domain.TxStatusCaptured, nil, "")
	issued := float64(1_700_000_001)
	cb.IssuedAt = &issued
	if _, err := svc.Process(context.Background(), cb); !errors.Is(err, ErrIssuedAtMismatch) {
		t.Fatalf("err = %v; want ErrIssuedAtMismatch", err)
	}
}

func TestProcess_MerchantMismatch(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	cb := signedCallback(domain.TxStatusCaptured, nil, "")
	cb.MerchantID = "m2"
	if _, err := svc.Process(context.Background(), cb); !errors.Is(err, ErrMerchantMismatch) {
		t.Fatalf("err = %v; want ErrMerchantMismatch", err)
	}
}

func TestProcess_SuspendedMerchant(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusSuspended, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	if _, err := svc.Process(context.Background(), signedCallback(domain.TxStatusCaptured, nil, "")); !errors.Is(err, ErrMerchantSuspended) {
		t.Fatalf("err = %v; want ErrMerchantSuspended", err)
	}
}

func TestProcess_InputValidation(t *testing.T) {
	db := newTestDB(t)
	seedMerchantTx(t, db, domain.MerchantStatusActive, domain.TxStatusAuthorized, time.Now().Add(time.Hour))
	svc := NewMerchantService(db)

	missing := signedCallback(domain.TxStatusCaptured, nil, "")
	missing.Nonce = ""
	if _, err := svc.Process(context.Background(), missing); !errors.Is(err, ErrMissingFields) {
		t.Errorf("missing nonce: err = %v; want ErrMissingFields", err)
	}

	badStatus := signedCallback("refunded", nil, "")
	if _, err := svc.Process(context.Background(), badStatus); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("bad status: err = %v; want ErrUnknownStatus", err)
	}

	negAmount := signedCallback(domain.TxStatusCaptured, nil, "")
	neg := float64(-5)
	negAmount.AmountMinor = &neg
	if _, err := svc.Process(context.Background(), negAmount); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative amount: err = %v; want ErrInvalidAmount", err)
	}

	// float64(math.MaxInt64) is exactly 2^63; int64 conversion of anything
	// at or above it is undefined, so the pipeline must reject it outright.
	hugeAmount := signedCallback(domain.TxStatusCaptured, nil, "")
	huge := float64(math.MaxInt64)
	hugeAmount.AmountMinor = &huge
	if _, err := svc.Process(context.Background(), hugeAmount); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("overflowing amount: err = %v; want ErrInvalidAmount", err)
	}

	dblAmount := signedCallback(domain.TxStatusCaptured, nil, "")
	dbl := math.MaxFloat64
	dblAmount.AmountMinor = &dbl
	if _, err := svc.Process(context.Background(), dblAmount); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("max float amount: err = %v; want ErrInvalidAmount", err)
	}

	unknown := signedCallback(domain.TxStatusCaptured, nil, "")
	unknown.TransactionID = "tx-missing"
	if _, err := svc.Process(context.Background(), unknown); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("unknown tx: err = %v; want ErrTransactionNotFound", err)
	}
}

func TestCanonicalString_FixedOrder(t *testing.T) {
	amount := int64(100000)
	got := canonicalString("m1", "tx1", "captured", &amount, "rwf", "nonce-abc", 1_700_000_000)
	want := "m1|tx1|captured|100000|RWF|nonce-abc|1700000000"
	if got != want {
		t.Fatalf("canonicalString = %q; want %q", got, want)
	}

	got = canonicalString("m1", "tx1", "failed", nil, "", "nonce-abc", 1)
	want = "m1|tx1|failed|||nonce-abc|1"
	if got != want {
		t.Fatalf("canonicalString = %q; want %q", got, want)
	}
}
