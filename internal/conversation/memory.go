package conversation

import (
	"strings"

	"github.com/elliotchance/pie/v2"
)

// Role tags a turn as spoken by the user or the assistant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultWindow is the number of user/assistant pairs kept by default.
const DefaultWindow = 5

const emptyHistory = "No conversation yet."

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

func (t Turn) speaker() string {
	if t.Role == RoleUser {
		return "User"
	}
	return "AI"
}

// Memory is an ordered log of turns bounded to 2*window entries. The oldest
// turns are evicted first. Memory is not safe for concurrent use; callers
// serialize access per session.
type Memory struct {
	turns  []Turn
	window int
}

func NewMemory(window int) *Memory {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Memory{window: window}
}

// Capacity is the maximum number of retained turns.
func (m *Memory) Capacity() int {
	return 2 * m.window
}

func (m *Memory) Append(t Turn) {
	m.turns = append(m.turns, t)
	if over := len(m.turns) - m.Capacity(); over > 0 {
		kept := make([]Turn, m.Capacity())
		copy(kept, m.turns[over:])
		m.turns = kept
	}
}

func (m *Memory) Clear() {
	m.turns = nil
}

// Snapshot returns a copy of the retained turns in chronological order.
func (m *Memory) Snapshot() []Turn {
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out
}

func (m *Memory) IsEmpty() bool {
	return len(m.turns) == 0
}

func (m *Memory) Len() int {
	return len(m.turns)
}

// FormatTurns renders turns as "User: ..." / "AI: ..." lines.
func FormatTurns(turns []Turn) string {
	if len(turns) == 0 {
		return emptyHistory
	}
	lines := pie.Map(turns, func(t Turn) string {
		return t.speaker() + ": " + t.Content
	})
	return strings.Join(lines, "\n")
}
