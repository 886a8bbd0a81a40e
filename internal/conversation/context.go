package conversation

import (
	"fmt"
	"time"
)

// Unknown fills every descriptive field of a synthesized default context.
const Unknown = "unknown"

// Context is the situational metadata framing a conversation.
type Context struct {
	Date      time.Time `json:"date"`
	TimeOfDay string    `json:"time_of_day" validate:"required"`
	Location  string    `json:"location" validate:"required"`
	Companion string    `json:"companion" validate:"required"`
	Mood      string    `json:"mood" validate:"required"`
}

// DefaultContext is used when a message arrives before any context was set.
func DefaultContext(now time.Time) Context {
	return Context{
		Date:      now,
		TimeOfDay: Unknown,
		Location:  Unknown,
		Companion: Unknown,
		Mood:      Unknown,
	}
}

// Format renders the context block embedded in prompts.
func (c Context) Format() string {
	return fmt.Sprintf(
		"Date: %s\nTime of day: %s\nLocation: %s\nCompanion: %s\nMood: %s",
		c.Date.Format("2006-01-02"),
		c.TimeOfDay,
		c.Location,
		c.Companion,
		c.Mood,
	)
}

// ContextStore holds the active context of one session. Replacing the
// context clears the attached memory.
type ContextStore struct {
	active *Context
	memory *Memory
}

func NewContextStore(memory *Memory) *ContextStore {
	return &ContextStore{memory: memory}
}

func (s *ContextStore) Set(c Context) {
	s.active = &c
	if s.memory != nil {
		s.memory.Clear()
	}
}

func (s *ContextStore) Get() (Context, bool) {
	if s.active == nil {
		return Context{}, false
	}
	return *s.active, true
}

// GetOrDefault returns the active context, installing DefaultContext(now)
// as the active one when none is set.
func (s *ContextStore) GetOrDefault(now time.Time) Context {
	if s.active == nil {
		c := DefaultContext(now)
		s.active = &c
	}
	return *s.active
}
