package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageSetContext(t *testing.T) {
	raw := []byte(`{"type":"set_context","context":{"date":"2024-05-01T20:00:00Z","time_of_day":"evening","location":"home","companion":"spouse","mood":"happy"}}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	set, ok := msg.(SetContext)
	if !ok {
		t.Fatalf("message type = %T, want SetContext", msg)
	}
	if set.Context.Location != "home" || set.Context.Date.Year() != 2024 {
		t.Fatalf("unexpected context: %+v", set.Context)
	}
}

func TestParseClientMessageMessage(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"message","content":"今日は散歩した"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	m, ok := msg.(Message)
	if !ok {
		t.Fatalf("message type = %T, want Message", msg)
	}
	if m.Content != "今日は散歩した" {
		t.Fatalf("Content = %q", m.Content)
	}
}

func TestParseClientMessageRejectsBlankMessage(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"message","content":"  "}`)); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientMessageSave(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"save","summary":"- walked"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	save, ok := msg.(Save)
	if !ok {
		t.Fatalf("message type = %T, want Save", msg)
	}
	if save.Summary != "- walked" || save.Context != nil {
		t.Fatalf("unexpected save: %+v", save)
	}

	msg, err = ParseClientMessage([]byte(`{"type":"summarize"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if _, ok := msg.(Summarize); !ok {
		t.Fatalf("message type = %T, want Summarize", msg)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{not-json`)); err == nil {
		t.Fatalf("expected envelope error")
	}
}

func BenchmarkParseClientMessage(b *testing.B) {
	raw := []byte(`{"type":"message","content":"I went to the beach with friends and we had a barbecue."}`)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ParseClientMessage(raw); err != nil {
			b.Fatal(err)
		}
	}
}
