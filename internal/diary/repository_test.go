package diary

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ent0n29/audiodiary/internal/conversation"
)

func testRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	date := time.Date(2024, 5, 1, 20, 30, 0, 0, time.UTC)
	c := conversation.Context{
		Date:      date,
		TimeOfDay: "evening",
		Location:  "home",
		Companion: "spouse",
		Mood:      "happy",
	}

	first, err := repo.Create(ctx, Entry{Date: date, Contexts: []conversation.Context{c}, Summary: "- 散歩した"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if first.ID == 0 {
		t.Fatalf("Create() ID = 0, want assigned id")
	}

	second, err := repo.Create(ctx, Entry{Summary: "- no context"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("second ID = %d, want > %d", second.ID, first.ID)
	}
	if second.Contexts == nil || len(second.Contexts) != 0 {
		t.Fatalf("second Contexts = %#v, want empty list", second.Contexts)
	}
	if second.Date.IsZero() {
		t.Fatalf("second Date is zero, want save time")
	}

	got, err := repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Summary != "- 散歩した" {
		t.Fatalf("Summary = %q, want %q", got.Summary, "- 散歩した")
	}
	if !got.Date.Equal(date) {
		t.Fatalf("Date = %v, want %v", got.Date, date)
	}
	if len(got.Contexts) != 1 || got.Contexts[0].Mood != "happy" || !got.Contexts[0].Date.Equal(date) {
		t.Fatalf("Contexts = %#v, want one context snapshot", got.Contexts)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("List() = %#v, want both entries in id order", list)
	}

	if err := repo.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(deleted) error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete(deleted) error = %v, want ErrNotFound", err)
	}
	if _, err := repo.Get(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestInMemoryRepository(t *testing.T) {
	testRepository(t, NewInMemoryRepository())
}

func TestSQLiteRepository(t *testing.T) {
	repo, err := NewSQLiteRepository(context.Background(), filepath.Join(t.TempDir(), "diary", "diary.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	testRepository(t, repo)
}

func TestDecodeContextsAcceptsSingleObject(t *testing.T) {
	var e Entry
	if err := decodeContexts([]byte(`{"time_of_day":"morning","location":"cafe","companion":"alone","mood":"calm"}`), &e); err != nil {
		t.Fatalf("decodeContexts() error = %v", err)
	}
	if len(e.Contexts) != 1 || e.Contexts[0].Location != "cafe" {
		t.Fatalf("Contexts = %#v, want single cafe context", e.Contexts)
	}

	if err := decodeContexts([]byte("null"), &e); err != nil {
		t.Fatalf("decodeContexts(null) error = %v", err)
	}
	if e.Contexts == nil || len(e.Contexts) != 0 {
		t.Fatalf("Contexts = %#v, want empty list", e.Contexts)
	}
}

func TestNewRepositoryDefaultsToInMemory(t *testing.T) {
	repo, err := NewRepository(context.Background(), "", " ")
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	if _, ok := repo.(*InMemoryRepository); !ok {
		t.Fatalf("NewRepository() = %T, want *InMemoryRepository", repo)
	}
}
