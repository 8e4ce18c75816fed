package creation

import (
	"context"
	"errors"

	"github.com/suPer8Hu/adforge/internal/models"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateMany(ctx context.Context, items []*models.Creation) error {
	if len(items) == 0 {
		return nil
	}
	stamp(items)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(items).Error
	})
}

func (r *Repo) Get(ctx context.Context, userID uint64, id string) (*models.Creation, error) {
	var c models.Creation
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List pages by ULID, which sorts by creation time.
func (r *Repo) List(ctx context.Context, userID uint64, opts ListOptions) ([]models.Creation, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(opts.Limit)
	if opts.Type != "" {
		q = q.Where("type = ?", opts.Type)
	}
	if opts.BeforeID != "" {
		q = q.Where("id < ?", opts.BeforeID)
	}

	var out []models.Creation
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) SetRating(ctx context.Context, userID uint64, id string, rating int) error {
	if !validRating(rating) {
		return ErrInvalidRating
	}
	res := r.db.WithContext(ctx).Model(&models.Creation{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("rating", rating)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
