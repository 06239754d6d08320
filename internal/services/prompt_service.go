// Package services – PromptService
//
// This file implements the parser prompt registry: listing, creating and
// activating the versioned instruction templates the SMS parser runs with.
// The active prompt is resolved on every parse, so the service owns a
// lazily-initialized, mutex-guarded cache instead of the ambient global
// memoization the feature grew out of. Create and activate invalidate it.
package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"gorm.io/gorm"

	"github.com/paydeck/recon-backend/internal/domain"
	"github.com/paydeck/recon-backend/internal/repo"
)

// PromptService manages parser prompt versions and the single-active
// invariant.
type PromptService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	mu     sync.RWMutex
	cached *domain.ParserPrompt
	loaded bool
}

// NewPromptService constructs a PromptService.
func NewPromptService(db *gorm.DB) *PromptService {
	return &PromptService{DB: db}
}

// List returns all prompts, newest version first.
func (s *PromptService) List(ctx context.Context) ([]domain.ParserPrompt, error) {
	return repo.ListPrompts(ctx, s.DB)
}

// Active returns the single active prompt, or (nil, nil) when none is
// active. The result is cached until the next Create or Activate.
func (s *PromptService) Active(ctx context.Context) (*domain.ParserPrompt, error) {
	s.mu.RLock()
	if s.loaded {
		p := s.cached
		s.mu.RUnlock()
		return p, nil
	}
	s.mu.RUnlock()

	p, err := repo.ActivePrompt(ctx, s.DB)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	s.mu.Lock()
	s.cached = p // nil when no prompt is active
	s.loaded = true
	s.mu.Unlock()
	return p, nil
}

// Create stores a new prompt, inactive by default. When version is nil the
// next version is the current maximum plus one; explicit versions are
// accepted as-is (monotonic per creation, gaps allowed).
func (s *PromptService) Create(ctx context.Context, label, body string, version *int) (*domain.ParserPrompt, error) {
	label = strings.TrimSpace(label)
	if label == "" || strings.TrimSpace(body) == "" {
		return nil, ErrPromptInvalid
	}

	var p *domain.ParserPrompt
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v := 0
		if version != nil {
			v = *version
		} else {
			maxV, err := repo.MaxPromptVersion(ctx, tx)
			if err != nil {
				return err
			}
			v = maxV + 1
		}
		var err error
		p, err = repo.CreatePrompt(ctx, tx, label, body, v)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidate()
	return p, nil
}

// Activate marks the prompt active and deactivates every other prompt in
// the same write. A missing ID fails with ErrPromptNotFound and deactivates
// nothing.
func (s *PromptService) Activate(ctx context.Context, id string) (*domain.ParserPrompt, error) {
	p, err := repo.ActivatePrompt(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, err
	}
	s.invalidate()
	return p, nil
}

// invalidate drops the cached active prompt so the next Active call reads
// the store.
func (s *PromptService) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.loaded = false
	s.mu.Unlock()
}
