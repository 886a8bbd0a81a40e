package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/elliotchance/pie/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/audiodiary/internal/chat"
	"github.com/ent0n29/audiodiary/internal/config"
	"github.com/ent0n29/audiodiary/internal/diary"
	"github.com/ent0n29/audiodiary/internal/observability"
	"github.com/ent0n29/audiodiary/internal/reliability"
	"github.com/ent0n29/audiodiary/internal/session"
)

// SessionHeader selects the conversation a request belongs to. Requests
// without it share session.DefaultID.
const SessionHeader = "X-Session-ID"

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	chat     *chat.Service
	diary    diary.Repository
	metrics  *observability.Metrics
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, chatService *chat.Service, repo diary.Repository, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		chat:     chatService,
		diary:    repo,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				if pie.Contains(cfg.AllowedOrigins, origin) {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recovery)
	r.Use(CORS(s.cfg.AllowedOrigins, s.cfg.AllowAnyOrigin))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Post("/v1/sessions", s.handleCreateSession)

	r.Route("/chat", func(r chi.Router) {
		r.Post("/", s.handleQuickChat)
		r.Post("/context", s.handleSetContext)
		r.Get("/context", s.handleGetContext)
		r.Post("/message", s.handleMessage)
		r.Post("/summarize", s.handleSummarize)
		r.Post("/save", s.handleSave)
		r.Get("/history", s.handleHistory)
		r.Get("/summary", s.handleCachedSummary)
		r.Get("/status", s.handleStatus)
		r.Delete("/session", s.handleEndSession)
		r.Get("/ws", s.handleChatWS)
	})

	r.Route("/diary", func(r chi.Router) {
		r.Get("/", s.handleListDiary)
		r.Get("/{id}", s.handleGetDiary)
		r.Delete("/{id}", s.handleDeleteDiary)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	sess := s.sessions.Create(req.UserID)
	s.observeSessions("created")

	respondJSON(w, http.StatusCreated, session.CreateResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          sess.Status,
		StartedAt:       sess.StartedAt,
		LastActivityAt:  sess.LastActivityAt,
		InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.chat.Discard(r.Context(), id)
	s.observeSessions("ended")
	respondJSON(w, http.StatusOK, sess)
}

// resolveSession maps the request to an active session id, writing a 404
// for unknown or ended explicit ids.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(SessionHeader))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}
	if id == "" || id == session.DefaultID {
		before := s.sessions.ActiveCount()
		sess := s.sessions.GetOrCreate(session.DefaultID, "anonymous")
		if s.sessions.ActiveCount() != before {
			s.observeSessions("created")
		}
		_ = s.sessions.Touch(sess.ID)
		return sess.ID, true
	}
	if err := s.sessions.Touch(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return "", false
	}
	return id, true
}

func (s *Server) observeSessions(event string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvent(event)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		// Only a body with no bytes at all counts as empty. A truncated
		// document reports io.ErrUnexpectedEOF and stays a decode error.
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondChatError(w http.ResponseWriter, err error) {
	status, code, retryable := classifyError(err)
	respondJSON(w, status, errorResponse{Error: err.Error(), Code: code, Retryable: retryable})
}

// classifyError maps chat failures to an HTTP status, a stable error code
// and whether the client may retry the same request.
func classifyError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest, "invalid_request", false
	case errors.Is(err, chat.ErrEmptyCompletion):
		return http.StatusBadRequest, "empty_completion", true
	case errors.Is(err, chat.ErrEmptySummary):
		return http.StatusBadRequest, "empty_summary", true
	case errors.Is(err, chat.ErrNothingToSummarize):
		return http.StatusBadRequest, "nothing_to_summarize", false
	case errors.Is(err, chat.ErrNoSummaryAvailable):
		return http.StatusBadRequest, "no_summary_available", false
	case errors.Is(err, chat.ErrGatewayFailure):
		retryable := true
		var statusErr *reliability.StatusError
		if errors.As(err, &statusErr) {
			retryable = reliability.IsRetryableHTTPStatus(statusErr.Code)
		}
		return http.StatusInternalServerError, "gateway_failure", retryable
	case errors.Is(err, chat.ErrPersistenceFailure):
		return http.StatusInternalServerError, "persistence_failure", true
	default:
		return http.StatusInternalServerError, "internal_error", false
	}
}
