package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/ent0n29/audiodiary/internal/diary"
)

func TestDiaryRoutes(t *testing.T) {
	env := newTestEnv(t, nil)
	created, err := env.repo.Create(context.Background(), diary.Entry{
		Date:    time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC),
		Summary: "- a quiet evening",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	path := "/diary/" + strconv.FormatInt(created.ID, 10)

	var list []diary.Entry
	if status := env.do(t, http.MethodGet, "/diary/", "", nil, &list); status != http.StatusOK {
		t.Fatalf("list status = %d, want %d", status, http.StatusOK)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	var got diary.Entry
	if status := env.do(t, http.MethodGet, path, "", nil, &got); status != http.StatusOK {
		t.Fatalf("get status = %d, want %d", status, http.StatusOK)
	}
	if got.Summary != created.Summary {
		t.Fatalf("summary = %q, want %q", got.Summary, created.Summary)
	}

	var deleted map[string]string
	if status := env.do(t, http.MethodDelete, path, "", nil, &deleted); status != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", status, http.StatusOK)
	}
	if deleted["message"] == "" {
		t.Fatalf("delete body = %+v", deleted)
	}

	if status := env.do(t, http.MethodGet, path, "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", status, http.StatusNotFound)
	}
	if status := env.do(t, http.MethodDelete, path, "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want %d", status, http.StatusNotFound)
	}
	if status := env.do(t, http.MethodGet, "/diary/not-a-number", "", nil, nil); status != http.StatusNotFound {
		t.Fatalf("bad id status = %d, want %d", status, http.StatusNotFound)
	}
}
