package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/iliyamo/webshop-accounts/internal/config"
)

// ErrEmptyPassword is returned by Hash for an empty plaintext.
var ErrEmptyPassword = errors.New("empty password")

// Hasher hashes and verifies passwords with bcrypt.  bcrypt output
// already encodes algorithm, cost and salt, so Verify needs nothing but
// the digest.  Every operation first acquires a slot of a weighted
// semaphore: at most HashConcurrency comparisons burn CPU at once and the
// rest wait (or give up when their request context ends) instead of
// starving unrelated requests.
type Hasher struct {
	cost  int
	slots *semaphore.Weighted
}

// NewHasher builds a Hasher from the bcrypt settings in cfg.
func NewHasher(cfg *config.Config) (*Hasher, error) {
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d outside [%d,%d]", cfg.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	n := cfg.HashConcurrency
	if n < 1 {
		n = 1
	}
	return &Hasher{cost: cfg.BcryptCost, slots: semaphore.NewWeighted(int64(n))}, nil
}

// Hash returns the bcrypt digest of plain.
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches digest.  Empty inputs, malformed
// digests and a cancelled context all yield false.
func (h *Hasher) Verify(ctx context.Context, plain, digest string) bool {
	if plain == "" || digest == "" {
		return false
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.slots.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

// Cost returns the configured work factor.
func (h *Hasher) Cost() int { return h.cost }
