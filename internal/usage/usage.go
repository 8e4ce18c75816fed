// Package usage keeps the per-user generation token counter.
package usage

import (
	"context"

	"github.com/suPer8Hu/adforge/internal/models"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Record adds tokens to the user's running total. Zero is a no-op.
func (s *Service) Record(ctx context.Context, userID uint64, tokens int) error {
	if tokens <= 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("tokens_used", gorm.Expr("tokens_used + ?", tokens)).Error
}
