package services

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/paydeck/recon-backend/internal/domain"
)

// newTestDB opens a unique in-memory SQLite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(
		&domain.InboundSms{},
		&domain.ParsedSms{},
		&domain.Payment{},
		&domain.Merchant{},
		&domain.MerchantTransaction{},
		&domain.ParserPrompt{},
		&domain.IngestReceipt{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeEvents records emitted payment confirmations.
type fakeEvents struct {
	events []PaymentConfirmedEvent
}

func (f *fakeEvents) PaymentConfirmed(_ context.Context, ev PaymentConfirmedEvent) {
	f.events = append(f.events, ev)
}
