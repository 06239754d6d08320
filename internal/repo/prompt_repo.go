// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ParserPrompt model. Activation is transactional so the "at most one
// active prompt" invariant can never be observed broken.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
)

// ListPrompts returns all prompts, newest version first.
func ListPrompts(ctx context.Context, db *gorm.DB) ([]domain.ParserPrompt, error) {
	var out []domain.ParserPrompt
	err := db.WithContext(ctx).Order("version DESC, created_at DESC").Find(&out).Error
	return out, err
}

// ActivePrompt returns the single active prompt, or ErrNotFound when no
// prompt is active.
func ActivePrompt(ctx context.Context, db *gorm.DB) (*domain.ParserPrompt, error) {
	var p domain.ParserPrompt
	if err := db.WithContext(ctx).Where("is_active = ?", true).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPrompt fetches a prompt by ID, or ErrNotFound if missing.
func GetPrompt(ctx context.Context, db *gorm.DB, id string) (*domain.ParserPrompt, error) {
	var p domain.ParserPrompt
	if err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// MaxPromptVersion returns the highest version number currently stored, or
// 0 when the table is empty.
func MaxPromptVersion(ctx context.Context, db *gorm.DB) (int, error) {
	var row struct{ V *int }
	err := db.WithContext(ctx).
		Model(&domain.ParserPrompt{}).
		Select("MAX(version) AS v").
		Scan(&row).Error
	if err != nil {
		return 0, err
	}
	if row.V == nil {
		return 0, nil
	}
	return *row.V, nil
}

// CreatePrompt inserts a new prompt, inactive by default.
func CreatePrompt(ctx context.Context, db *gorm.DB, label, body string, version int) (*domain.ParserPrompt, error) {
	p := &domain.ParserPrompt{
		ID:        uuid.NewString(),
		Label:     label,
		Body:      body,
		Version:   version,
		IsActive:  false,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// ActivatePrompt marks the prompt with the given ID active and deactivates
// every other prompt inside one transaction. Returns ErrNotFound when the
// ID does not exist; in that case no prompt is deactivated either.
func ActivatePrompt(ctx context.Context, db *gorm.DB, id string) (*domain.ParserPrompt, error) {
	var out domain.ParserPrompt
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&out).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.ParserPrompt{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.ParserPrompt{}).
			Where("id = ?", id).
			Update("is_active", true).Error; err != nil {
			return err
		}
		out.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
