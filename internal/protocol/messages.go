package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/audiodiary/internal/conversation"
	"github.com/ent0n29/audiodiary/internal/diary"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeSetContext MessageType = "set_context"
	TypeMessage    MessageType = "message"
	TypeSummarize  MessageType = "summarize"
	TypeSave       MessageType = "save"

	TypeOpening    MessageType = "opening"
	TypeReply      MessageType = "reply"
	TypeSummary    MessageType = "summary"
	TypeSaved      MessageType = "saved"
	TypeErrorEvent MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type SetContext struct {
	Type    MessageType          `json:"type"`
	Context conversation.Context `json:"context"`
}

type Message struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type Summarize struct {
	Type MessageType `json:"type"`
}

type Save struct {
	Type    MessageType           `json:"type"`
	Summary string                `json:"summary,omitempty"`
	Context *conversation.Context `json:"context,omitempty"`
}

type Opening struct {
	Type           MessageType          `json:"type"`
	SessionID      string               `json:"session_id"`
	InitialMessage string               `json:"initial_message"`
	Context        conversation.Context `json:"context"`
}

type Reply struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Content   string      `json:"content"`
}

type Summary struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Summary   string      `json:"summary"`
}

type Saved struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Entry     diary.Entry `json:"entry"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes one client frame into SetContext, Message,
// Summarize or Save. Field validation beyond presence is left to the
// caller.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSetContext:
		var msg SetContext
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeMessage:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.Content) == "" {
			return nil, errors.New("invalid message: content is required")
		}
		return msg, nil
	case TypeSummarize:
		return Summarize{Type: TypeSummarize}, nil
	case TypeSave:
		var msg Save
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
