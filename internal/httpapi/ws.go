package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/audiodiary/internal/chat"
	"github.com/ent0n29/audiodiary/internal/protocol"
	"github.com/ent0n29/audiodiary/internal/session"
)

const (
	wsReadLimit    = 1 << 20
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsQueueSize    = 64
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.resolveSession(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, wsQueueSize)
	outbound := make(chan any, wsQueueSize)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		defer close(outbound)
		defer cancel()
		s.runConnection(ctx, sessionID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Closing the socket unblocks the read loop once nothing is left to send.
		defer conn.Close()
		for msg := range outbound {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				// Drain so runConnection never blocks on a dead socket.
				for range outbound {
				}
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.countWS("outbound", t)
			}
		}
	}()

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			parsed = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Detail:    err.Error(),
			}
		} else if t, ok := messageTypeOf(parsed); ok {
			s.countWS("inbound", t)
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.SessionEvent("ws_disconnected")
}

// runConnection handles client frames one at a time, so a session's
// operations keep the order in which they were sent.
func (s *Server) runConnection(ctx context.Context, sessionID string, inbound <-chan any, outbound chan<- any) {
	send := func(v any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- v:
			return true
		}
	}

	for msg := range inbound {
		if ctx.Err() != nil {
			continue
		}
		if errEvent, ok := msg.(protocol.ErrorEvent); ok {
			send(errEvent)
			continue
		}
		if err := s.touchWSSession(sessionID); err != nil {
			send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "session_not_found",
				Detail:    err.Error(),
			})
			return
		}
		send(s.dispatch(ctx, sessionID, msg))
	}
}

func (s *Server) dispatch(ctx context.Context, sessionID string, msg any) any {
	switch m := msg.(type) {
	case protocol.SetContext:
		if err := s.validate.Struct(m.Context); err != nil {
			return validationEvent(sessionID, err)
		}
		opening, err := s.chat.BeginSession(ctx, sessionID, m.Context)
		if err != nil {
			return errorEvent(sessionID, err)
		}
		return protocol.Opening{
			Type:           protocol.TypeOpening,
			SessionID:      sessionID,
			InitialMessage: opening.Message,
			Context:        opening.Context,
		}
	case protocol.Message:
		reply, err := s.chat.SendMessage(ctx, sessionID, m.Content)
		if err != nil {
			return errorEvent(sessionID, err)
		}
		_ = s.sessions.RecordExchange(sessionID)
		return protocol.Reply{Type: protocol.TypeReply, SessionID: sessionID, Content: reply}
	case protocol.Summarize:
		text, err := s.chat.Summarize(ctx, sessionID)
		if err != nil {
			return errorEvent(sessionID, err)
		}
		return protocol.Summary{Type: protocol.TypeSummary, SessionID: sessionID, Summary: text}
	case protocol.Save:
		if m.Context != nil {
			if err := s.validate.Struct(*m.Context); err != nil {
				return validationEvent(sessionID, err)
			}
		}
		entry, err := s.chat.SaveDiary(ctx, sessionID, chat.SaveRequest{Summary: m.Summary, Context: m.Context})
		if err != nil {
			return errorEvent(sessionID, err)
		}
		return protocol.Saved{Type: protocol.TypeSaved, SessionID: sessionID, Entry: entry}
	default:
		return protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      "invalid_client_message",
			Detail:    protocol.ErrUnsupportedType.Error(),
		}
	}
}

// touchWSSession keeps the connection's session alive. The shared default
// session is revived after expiry; explicit sessions are not.
func (s *Server) touchWSSession(sessionID string) error {
	if sessionID == session.DefaultID {
		s.sessions.GetOrCreate(session.DefaultID, "anonymous")
	}
	return s.sessions.Touch(sessionID)
}

func (s *Server) countWS(direction string, t protocol.MessageType) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
}

func errorEvent(sessionID string, err error) protocol.ErrorEvent {
	_, code, retryable := classifyError(err)
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Retryable: retryable,
		Detail:    err.Error(),
	}
}

func validationEvent(sessionID string, err error) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      "invalid_request",
		Detail:    strings.TrimSpace(err.Error()),
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.SetContext:
		return protocol.TypeSetContext, true
	case protocol.Message:
		return protocol.TypeMessage, true
	case protocol.Summarize:
		return protocol.TypeSummarize, true
	case protocol.Save:
		return protocol.TypeSave, true
	case protocol.Opening:
		return protocol.TypeOpening, true
	case protocol.Reply:
		return protocol.TypeReply, true
	case protocol.Summary:
		return protocol.TypeSummary, true
	case protocol.Saved:
		return protocol.TypeSaved, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
