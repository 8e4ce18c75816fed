package usage

import (
	"context"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/adforge/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestRecordAccumulates(t *testing.T) {
	db := openTestDB(t)
	u := &models.User{Email: "a@example.com", PasswordHash: "x", Role: models.RoleUser}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}

	svc := NewService(db)
	ctx := context.Background()
	for _, n := range []int{120, 0, -5, 30} {
		if err := svc.Record(ctx, u.ID, n); err != nil {
			t.Fatalf("record %d: %v", n, err)
		}
	}

	var got models.User
	if err := db.First(&got, u.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if got.TokensUsed != 150 {
		t.Fatalf("tokens_used = %d, want 150", got.TokensUsed)
	}
}
