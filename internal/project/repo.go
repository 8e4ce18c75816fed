package project

import (
	"context"
	"errors"

	"github.com/suPer8Hu/adforge/internal/common"
	"github.com/suPer8Hu/adforge/internal/models"
	"github.com/suPer8Hu/adforge/internal/retry"
	"gorm.io/gorm"
)

// casAttempts bounds the refetch-reapply loop on the shared default project.
const casAttempts = 5

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) GetDefault(ctx context.Context, userID uint64) (*models.Project, error) {
	var p models.Project
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, models.DefaultProjectName).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// EnsureDefault returns the user's default project, creating it on first use.
// Two callers racing on creation both end up with the same row: the loser's
// insert hits the (user_id, name) unique index and it re-reads.
func (r *Repo) EnsureDefault(ctx context.Context, userID uint64) (*models.Project, error) {
	p, err := r.GetDefault(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	p = &models.Project{
		ID:        id,
		UserID:    userID,
		Name:      models.DefaultProjectName,
		IsDefault: true,
	}
	createErr := r.db.WithContext(ctx).Create(p).Error
	if createErr == nil {
		return p, nil
	}

	existing, getErr := r.GetDefault(ctx, userID)
	if getErr == nil {
		return existing, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, createErr
	}
	return nil, getErr
}

// AddCreations bumps the project's creation counter with an optimistic
// version check, refetching and reapplying on conflict.
func (r *Repo) AddCreations(ctx context.Context, projectID string, n int) error {
	if n <= 0 {
		return nil
	}
	return retry.CompareAndSwap(ctx, casAttempts,
		func(ctx context.Context) (*models.Project, error) {
			return r.GetByID(ctx, projectID)
		},
		func(p *models.Project) error {
			p.CreationCount += int64(n)
			return nil
		},
		r.save,
	)
}

func (r *Repo) save(ctx context.Context, p *models.Project) error {
	res := r.db.WithContext(ctx).Model(&models.Project{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]any{
			"creation_count": p.CreationCount,
			"version":        p.Version + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return retry.ErrConflict
	}
	p.Version++
	return nil
}
