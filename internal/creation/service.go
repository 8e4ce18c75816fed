package creation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/adforge/internal/common"
	"github.com/suPer8Hu/adforge/internal/models"
	"github.com/suPer8Hu/adforge/internal/users"
	"gorm.io/datatypes"
)

type UserChecker interface {
	Exists(ctx context.Context, id uint64) (bool, error)
}

type ProjectAttacher interface {
	EnsureDefault(ctx context.Context, userID uint64) (*models.Project, error)
	AddCreations(ctx context.Context, projectID string, n int) error
}

type Service struct {
	store    Store
	users    UserChecker
	projects ProjectAttacher
	log      zerolog.Logger
}

func NewService(store Store, users UserChecker, projects ProjectAttacher, log zerolog.Logger) *Service {
	return &Service{store: store, users: users, projects: projects, log: log}
}

// Persist stores one Creation per output, all sharing input, and attaches them
// to the user's default project. The returned slice is in output order.
func (s *Service) Persist(ctx context.Context, userID uint64, typ string, input json.RawMessage, outputs []json.RawMessage) ([]*models.Creation, error) {
	if len(outputs) == 0 {
		return nil, nil
	}

	// 1) a creation always references an existing user
	ok, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, users.ErrNotFound
	}

	// 2) resolve the default project
	proj, err := s.projects.EnsureDefault(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("default project: %w", err)
	}

	// 3) build + insert
	items := make([]*models.Creation, 0, len(outputs))
	for _, out := range outputs {
		id, err := common.NewULID()
		if err != nil {
			return nil, err
		}
		pid := proj.ID
		items = append(items, &models.Creation{
			ID:        id,
			Type:      typ,
			UserID:    userID,
			ProjectID: &pid,
			Input:     datatypes.JSON(append(json.RawMessage(nil), input...)),
			Output:    datatypes.JSON(append(json.RawMessage(nil), out...)),
		})
	}
	if err := s.store.CreateMany(ctx, items); err != nil {
		return nil, err
	}

	// 4) the counter is bookkeeping; the creations are already durable
	if err := s.projects.AddCreations(ctx, proj.ID, len(items)); err != nil {
		s.log.Warn().Err(err).Str("project_id", proj.ID).Uint64("user_id", userID).
			Msg("project counter update failed")
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, userID uint64, id string) (*models.Creation, error) {
	return s.store.Get(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID uint64, opts ListOptions) ([]models.Creation, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 50
	}
	return s.store.List(ctx, userID, opts)
}

func (s *Service) Rate(ctx context.Context, userID uint64, id string, rating int) error {
	return s.store.SetRating(ctx, userID, id, rating)
}
