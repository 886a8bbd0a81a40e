package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/audiodiary/internal/chat"
	"github.com/ent0n29/audiodiary/internal/conversation"
)

type contextRequest struct {
	Date      string `json:"date,omitempty"`
	TimeOfDay string `json:"time_of_day" validate:"required,max=64"`
	Location  string `json:"location" validate:"required,max=256"`
	Companion string `json:"companion" validate:"required,max=256"`
	Mood      string `json:"mood" validate:"required,max=256"`
}

// toContext converts the request, accepting RFC 3339 timestamps or plain
// dates. A missing date is left zero and filled in by the chat service.
func (c contextRequest) toContext() (conversation.Context, error) {
	out := conversation.Context{
		TimeOfDay: strings.TrimSpace(c.TimeOfDay),
		Location:  strings.TrimSpace(c.Location),
		Companion: strings.TrimSpace(c.Companion),
		Mood:      strings.TrimSpace(c.Mood),
	}
	raw := strings.TrimSpace(c.Date)
	if raw == "" {
		return out, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			out.Date = parsed
			return out, nil
		}
	}
	return conversation.Context{}, fmt.Errorf("invalid date %q", raw)
}

type messageRequest struct {
	Content string `json:"content" validate:"required,max=8000"`
}

type messageResponse struct {
	Content string `json:"content"`
}

type quickChatResponse struct {
	Response string `json:"response"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type saveRequest struct {
	Summary string          `json:"summary,omitempty" validate:"max=20000"`
	Context *contextRequest `json:"context,omitempty" validate:"omitempty"`
}

type historyResponse struct {
	SessionID string              `json:"session_id"`
	Turns     []conversation.Turn `json:"turns"`
	Capacity  int                 `json:"capacity"`
}

type contextResponse struct {
	SessionID string                `json:"session_id"`
	Context   *conversation.Context `json:"context"`
}

type statusResponse struct {
	chat.Status
	ExchangeCount  int       `json:"exchange_count"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func (s *Server) handleSetContext(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	var req contextRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	c, err := req.toContext()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	opening, err := s.chat.BeginSession(r.Context(), id, c)
	if err != nil {
		respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, opening)
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	resp := contextResponse{SessionID: id}
	if c, found := s.chat.GetContext(id); found {
		resp.Context = &c
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	reply, err := s.chat.SendMessage(r.Context(), id, req.Content)
	if err != nil {
		respondChatError(w, err)
		return
	}
	_ = s.sessions.RecordExchange(id)
	respondJSON(w, http.StatusOK, messageResponse{Content: reply})
}

// handleQuickChat is the short form of /chat/message kept for older
// clients that read the reply from "response".
func (s *Server) handleQuickChat(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	reply, err := s.chat.SendMessage(r.Context(), id, req.Content)
	if err != nil {
		respondChatError(w, err)
		return
	}
	_ = s.sessions.RecordExchange(id)
	respondJSON(w, http.StatusOK, quickChatResponse{Response: reply})
}

func (s *Server) handleSummarize(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	text, err := s.chat.Summarize(r.Context(), id)
	if err != nil {
		respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summaryResponse{Summary: text})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	var req saveRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	saveReq := chat.SaveRequest{Summary: req.Summary}
	if req.Context != nil {
		c, err := req.Context.toContext()
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		saveReq.Context = &c
	}

	entry, err := s.chat.SaveDiary(r.Context(), id, saveReq)
	if err != nil {
		respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	status, err := s.chat.Status(r.Context(), id)
	if err != nil {
		respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, historyResponse{
		SessionID: id,
		Turns:     s.chat.History(id),
		Capacity:  status.Capacity,
	})
}

func (s *Server) handleCachedSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	text, found, err := s.chat.CachedSummary(r.Context(), id)
	if err != nil {
		respondChatError(w, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "no_summary", "no cached summary for session")
		return
	}
	respondJSON(w, http.StatusOK, summaryResponse{Summary: text})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	status, err := s.chat.Status(r.Context(), id)
	if err != nil {
		respondChatError(w, err)
		return
	}
	resp := statusResponse{Status: status}
	if sess, err := s.sessions.Get(id); err == nil {
		resp.ExchangeCount = sess.ExchangeCount
		resp.StartedAt = sess.StartedAt
		resp.LastActivityAt = sess.LastActivityAt
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r, out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}
