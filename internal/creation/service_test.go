package creation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/adforge/internal/models"
	"github.com/suPer8Hu/adforge/internal/project"
	"github.com/suPer8Hu/adforge/internal/users"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Project{}, &models.Creation{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *models.User) {
	t.Helper()
	db := openTestDB(t)
	u := &models.User{Email: t.Name() + "@example.com", PasswordHash: "x", Role: models.RoleUser}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	svc := NewService(NewRepo(db), users.NewRepo(db), project.NewRepo(db), zerolog.Nop())
	return svc, db, u
}

func TestPersist_WritesOneRowPerOutput(t *testing.T) {
	svc, db, u := newTestService(t)
	ctx := context.Background()

	input := json.RawMessage(`{"businessDescription":"coffee"}`)
	outputs := []json.RawMessage{
		json.RawMessage(`{"h":"first"}`),
		json.RawMessage(`{"h":"second"}`),
	}
	items, err := svc.Persist(ctx, u.ID, "hook", input, outputs)
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 creations, got %d", len(items))
	}
	if items[0].ID == items[1].ID {
		t.Fatalf("creation ids must differ")
	}

	var rows []models.Creation
	if err := db.Where("user_id = ?", u.ID).Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("query creations: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Type != "hook" || string(rows[0].Output) != `{"h":"first"}` {
		t.Fatalf("unexpected first row: type=%q output=%s", rows[0].Type, rows[0].Output)
	}
	if rows[0].ProjectID == nil {
		t.Fatalf("creation should be attached to a project")
	}

	var p models.Project
	if err := db.First(&p, "id = ?", *rows[0].ProjectID).Error; err != nil {
		t.Fatalf("load project: %v", err)
	}
	if p.CreationCount != 2 || !p.IsDefault {
		t.Fatalf("unexpected project: %+v", p)
	}
}

func TestPersist_UnknownUser(t *testing.T) {
	svc, db, _ := newTestService(t)

	_, err := svc.Persist(context.Background(), 9999, "hook", json.RawMessage(`{}`), []json.RawMessage{json.RawMessage(`{}`)})
	if !errors.Is(err, users.ErrNotFound) {
		t.Fatalf("err = %v, want users.ErrNotFound", err)
	}
	var cnt int64
	db.Model(&models.Creation{}).Count(&cnt)
	if cnt != 0 {
		t.Fatalf("nothing should be persisted, found %d rows", cnt)
	}
}

func TestRateAndList(t *testing.T) {
	svc, _, u := newTestService(t)
	ctx := context.Background()

	items, err := svc.Persist(ctx, u.ID, "faq", json.RawMessage(`{}`), []json.RawMessage{
		json.RawMessage(`{"q":"a"}`), json.RawMessage(`{"q":"b"}`), json.RawMessage(`{"q":"c"}`),
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if _, err := svc.Persist(ctx, u.ID, "seo", json.RawMessage(`{}`), []json.RawMessage{json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("persist seo: %v", err)
	}

	if err := svc.Rate(ctx, u.ID, items[1].ID, 4); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if err := svc.Rate(ctx, u.ID, items[1].ID, 6); !errors.Is(err, ErrInvalidRating) {
		t.Fatalf("rate 6: err = %v, want ErrInvalidRating", err)
	}
	if err := svc.Rate(ctx, u.ID+1, items[1].ID, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rate other user: err = %v, want ErrNotFound", err)
	}

	got, err := svc.Get(ctx, u.ID, items[1].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Rating == nil || *got.Rating != 4 {
		t.Fatalf("rating = %v, want 4", got.Rating)
	}

	faqs, err := svc.List(ctx, u.ID, ListOptions{Type: "faq"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(faqs) != 3 {
		t.Fatalf("expected 3 faq creations, got %d", len(faqs))
	}
	if faqs[0].ID != items[2].ID {
		t.Fatalf("expected newest first, got %s want %s", faqs[0].ID, items[2].ID)
	}

	page, err := svc.List(ctx, u.ID, ListOptions{Type: "faq", Limit: 2, BeforeID: items[2].ID})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 2 || page[0].ID != items[1].ID {
		t.Fatalf("unexpected page: %+v", page)
	}
}
