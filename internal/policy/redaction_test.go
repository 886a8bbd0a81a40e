package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestLogPreviewTruncatesAndRedacts(t *testing.T) {
	got := LogPreview("今日は散歩した\n連絡は sam@example.com まで", 12)
	if strings.Contains(got, "\n") {
		t.Fatalf("LogPreview() kept newline: %q", got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("LogPreview() = %q, want truncation marker", got)
	}
	if strings.Contains(LogPreview("mail sam@example.com", 0), "sam@") {
		t.Fatalf("LogPreview() leaked email")
	}
}
