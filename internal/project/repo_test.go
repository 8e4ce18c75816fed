package project

import (
	"context"
	"errors"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/adforge/internal/models"
	"github.com/suPer8Hu/adforge/internal/retry"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Project{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestEnsureDefault_Idempotent(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	a, err := repo.EnsureDefault(ctx, 7)
	if err != nil {
		t.Fatalf("ensure default: %v", err)
	}
	b, err := repo.EnsureDefault(ctx, 7)
	if err != nil {
		t.Fatalf("ensure default again: %v", err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected same default project, got %s and %s", a.ID, b.ID)
	}
	if !a.IsDefault || a.Name != models.DefaultProjectName {
		t.Fatalf("unexpected project: %+v", a)
	}

	other, err := repo.EnsureDefault(ctx, 8)
	if err != nil {
		t.Fatalf("ensure default other user: %v", err)
	}
	if other.ID == a.ID {
		t.Fatalf("users must not share a default project")
	}
}

func TestAddCreations_ConcurrentBumps(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	p, err := repo.EnsureDefault(ctx, 1)
	if err != nil {
		t.Fatalf("ensure default: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.AddCreations(ctx, p.ID, 2)
		}()
	}
	wg.Wait()
	close(errs)

	var ok int64
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		if !errors.Is(err, retry.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.CreationCount != ok*2 {
		t.Fatalf("creation_count = %d, want %d (successful bumps x2)", got.CreationCount, ok*2)
	}
	if got.Version != ok {
		t.Fatalf("version = %d, want %d", got.Version, ok)
	}
}

func TestSave_StaleVersionConflicts(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	p, err := repo.EnsureDefault(ctx, 3)
	if err != nil {
		t.Fatalf("ensure default: %v", err)
	}
	stale := *p
	if err := repo.AddCreations(ctx, p.ID, 1); err != nil {
		t.Fatalf("add creations: %v", err)
	}
	stale.CreationCount = 99
	if err := repo.save(ctx, &stale); !errors.Is(err, retry.ErrConflict) {
		t.Fatalf("save stale: err = %v, want ErrConflict", err)
	}
}
