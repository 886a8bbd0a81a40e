package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/audiodiary/internal/diary"
)

func (s *Server) handleListDiary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.diary.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "persistence_failure", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetDiary(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	entry, err := s.diary.Get(r.Context(), id)
	if err != nil {
		respondDiaryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteDiary(w http.ResponseWriter, r *http.Request) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}
	if err := s.diary.Delete(r.Context(), id); err != nil {
		respondDiaryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Diary entry deleted successfully"})
}

func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusNotFound, "entry_not_found", "diary entry not found")
		return 0, false
	}
	return id, true
}

func respondDiaryError(w http.ResponseWriter, err error) {
	if errors.Is(err, diary.ErrNotFound) {
		respondError(w, http.StatusNotFound, "entry_not_found", "diary entry not found")
		return
	}
	respondError(w, http.StatusInternalServerError, "persistence_failure", err.Error())
}
