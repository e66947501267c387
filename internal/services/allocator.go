package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"carewire/internal/config"
	"carewire/pkg/models"
	"carewire/pkg/phone"
)

// NumberAllocator generates and tracks virtual phone numbers. It keeps a
// best-effort in-memory set of every number it has seen, seeded at startup,
// as a fast pre-check; correctness under concurrent assignment rests entirely
// on the store's unique constraints.
type NumberAllocator struct {
	store NumberStore
	cfg   config.NumberingConfig

	mu    sync.RWMutex
	known map[string]struct{}
}

// NewNumberAllocator creates an allocator over the given store.
func NewNumberAllocator(store NumberStore, cfg config.NumberingConfig) *NumberAllocator {
	return &NumberAllocator{
		store: store,
		cfg:   cfg,
		known: make(map[string]struct{}),
	}
}

// Seed loads the known-number cache from the store. Called once at startup;
// the cache only short-circuits obviously doomed candidates, so a stale cache
// is harmless.
func (a *NumberAllocator) Seed(ctx context.Context) error {
	numbers, err := a.store.ListNumbers(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed number cache: %w", err)
	}

	a.mu.Lock()
	for _, n := range numbers {
		a.known[n] = struct{}{}
	}
	a.mu.Unlock()

	log.Info().Int("count", len(numbers)).Msg("virtual number cache seeded")
	return nil
}

// Assign returns the user's virtual number, allocating one if needed.
// Idempotent: a user that already holds a number gets the same number back
// with no pool mutation. A free pooled number is claimed before a fresh one
// is synthesized. Collisions retry with a new candidate up to the configured
// bound; ErrAllocationExhausted is returned past it.
func (a *NumberAllocator) Assign(ctx context.Context, userID uuid.UUID) (string, error) {
	existing, err := a.store.FindByAssignedUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to look up assignment: %w", err)
	}
	if existing != nil {
		return existing.Number, nil
	}

	now := time.Now()

	claimed, err := a.store.ClaimFree(ctx, userID, now)
	if err != nil {
		if errors.Is(err, ErrNumberTaken) {
			// Lost a race against another assign for the same user.
			return a.refetch(ctx, userID)
		}
		return "", fmt.Errorf("failed to claim pooled number: %w", err)
	}
	if claimed != nil {
		a.remember(claimed.Number)
		log.Info().Str("number", claimed.Number).Str("user_id", userID.String()).Msg("pooled virtual number assigned")
		return claimed.Number, nil
	}

	for attempt := 0; attempt < a.cfg.MaxAttempts; attempt++ {
		candidate := a.synthesize()
		if a.seen(candidate) {
			continue
		}

		vn := &models.VirtualNumber{
			Number:         candidate,
			AssignedUserID: &userID,
			AssignedAt:     &now,
		}
		err := a.store.Create(ctx, vn)
		if err == nil {
			a.remember(candidate)
			log.Info().Str("number", candidate).Str("user_id", userID.String()).Int("attempts", attempt+1).Msg("virtual number assigned")
			return candidate, nil
		}
		if errors.Is(err, ErrNumberTaken) {
			a.remember(candidate)
			// The violated constraint may be the per-user one: another
			// request assigned this user a number first.
			if number, rerr := a.refetch(ctx, userID); rerr == nil && number != "" {
				return number, nil
			}
			continue
		}
		return "", fmt.Errorf("failed to persist assignment: %w", err)
	}

	log.Warn().Str("user_id", userID.String()).Int("attempts", a.cfg.MaxAttempts).Msg("virtual number allocation exhausted")
	return "", fmt.Errorf("%w after %d attempts", ErrAllocationExhausted, a.cfg.MaxAttempts)
}

// AddToPool normalizes a number and adds it to the unassigned pool. Numbers
// currently held by an identity are rejected with ErrAlreadyAssigned; a
// number already sitting free in the pool is returned unchanged.
func (a *NumberAllocator) AddToPool(ctx context.Context, raw string) (string, error) {
	number, err := phone.Normalize(raw, a.cfg.CallingCode)
	if err != nil {
		return "", err
	}

	err = a.store.Create(ctx, &models.VirtualNumber{Number: number})
	if err == nil {
		a.remember(number)
		return number, nil
	}
	if !errors.Is(err, ErrNumberTaken) {
		return "", fmt.Errorf("failed to add number to pool: %w", err)
	}

	existing, ferr := a.store.FindByNumber(ctx, number)
	if ferr != nil {
		return "", fmt.Errorf("failed to look up number: %w", ferr)
	}
	if existing != nil && existing.AssignedUserID != nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyAssigned, number)
	}
	a.remember(number)
	return number, nil
}

// Release clears the user's assignment; the number stays in the pool for
// future claims. ErrNumberNotFound when the user holds no number.
func (a *NumberAllocator) Release(ctx context.Context, userID uuid.UUID) (string, error) {
	released, err := a.store.Release(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to release number: %w", err)
	}
	if released == nil {
		return "", fmt.Errorf("%w: no assignment for user %s", ErrNumberNotFound, userID)
	}

	log.Info().Str("number", released.Number).Str("user_id", userID.String()).Msg("virtual number released to pool")
	return released.Number, nil
}

// RemoveFromPool deletes an unassigned number. Assigned numbers must be
// released first.
func (a *NumberAllocator) RemoveFromPool(ctx context.Context, raw string) error {
	number, err := phone.Normalize(raw, a.cfg.CallingCode)
	if err != nil {
		return err
	}

	existing, err := a.store.FindByNumber(ctx, number)
	if err != nil {
		return fmt.Errorf("failed to look up number: %w", err)
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrNumberNotFound, number)
	}
	if existing.AssignedUserID != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyAssigned, number)
	}

	if err := a.store.DeleteFree(ctx, number); err != nil {
		return fmt.Errorf("failed to remove number: %w", err)
	}

	a.mu.Lock()
	delete(a.known, number)
	a.mu.Unlock()
	return nil
}

// ListAvailable returns the unassigned pool.
func (a *NumberAllocator) ListAvailable(ctx context.Context) ([]models.VirtualNumber, error) {
	return a.store.ListAvailable(ctx)
}

// ListAssigned returns all current assignments.
func (a *NumberAllocator) ListAssigned(ctx context.Context) ([]models.VirtualNumber, error) {
	return a.store.ListAssigned(ctx)
}

// synthesize builds a candidate from the configured prefix and a random
// subscriber suffix.
func (a *NumberAllocator) synthesize() string {
	bound := 1
	for i := 0; i < a.cfg.SuffixDigits; i++ {
		bound *= 10
	}
	return fmt.Sprintf("+%s%s%0*d", a.cfg.CallingCode, a.cfg.Prefix, a.cfg.SuffixDigits, rand.Intn(bound))
}

func (a *NumberAllocator) refetch(ctx context.Context, userID uuid.UUID) (string, error) {
	existing, err := a.store.FindByAssignedUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to look up assignment: %w", err)
	}
	if existing == nil {
		return "", nil
	}
	return existing.Number, nil
}

func (a *NumberAllocator) seen(number string) bool {
	a.mu.RLock()
	_, ok := a.known[number]
	a.mu.RUnlock()
	return ok
}

func (a *NumberAllocator) remember(number string) {
	a.mu.Lock()
	a.known[number] = struct{}{}
	a.mu.Unlock()
}
