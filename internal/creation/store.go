// Package creation persists generated artifacts.
package creation

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/adforge/internal/models"
)

var (
	ErrNotFound      = errors.New("creation not found")
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

type ListOptions struct {
	Type     string
	Limit    int
	BeforeID string
}

// Store is implemented by the SQL repo and the Mongo store.
type Store interface {
	CreateMany(ctx context.Context, items []*models.Creation) error
	Get(ctx context.Context, userID uint64, id string) (*models.Creation, error)
	// List returns the user's creations newest first.
	List(ctx context.Context, userID uint64, opts ListOptions) ([]models.Creation, error)
	SetRating(ctx context.Context, userID uint64, id string, rating int) error
}

func validRating(r int) bool { return r >= 1 && r <= 5 }

func stamp(items []*models.Creation) {
	now := time.Now().UTC()
	for _, c := range items {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
	}
}
