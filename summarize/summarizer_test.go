package summarize

import (
	"strings"
	"testing"
	"time"

	"github.com/groupgist/groupgist/db"
)

func msgAt(daysAgo int, now time.Time, sender, text string) db.Message {
	return db.Message{
		SenderUsername: sender,
		Text:           text,
		Date:           now.AddDate(0, 0, -daysAgo),
	}
}

func TestFilterWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	msgs := []db.Message{
		msgAt(0, now, "a", "today"),
		msgAt(3, now, "b", "three days ago"),
		msgAt(10, now, "c", "ten days ago"),
	}

	got := FilterWindow(msgs, 7, now)
	if len(got) != 2 {
		t.Fatalf("FilterWindow(7 days) kept %d messages, want 2", len(got))
	}
	for _, m := range got {
		if m.Text == "ten days ago" {
			t.Fatal("message outside the window survived the filter")
		}
	}

	if got := FilterWindow(msgs, 0, now); len(got) != 3 {
		t.Fatalf("FilterWindow(0) kept %d messages, want all", len(got))
	}
	if got := FilterWindow(msgs, -1, now); len(got) != 3 {
		t.Fatalf("FilterWindow(-1) kept %d messages, want all", len(got))
	}
}

func TestFilterWindowBoundaryInclusive(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	onCutoff := db.Message{Text: "exactly at cutoff", Date: now.AddDate(0, 0, -7)}
	got := FilterWindow([]db.Message{onCutoff}, 7, now)
	if len(got) != 1 {
		t.Fatal("message exactly at the cutoff must be kept")
	}
}

func TestDateRange(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	// Stored order: newest first.
	msgs := []db.Message{
		msgAt(0, now, "a", "new"),
		msgAt(5, now, "b", "old"),
	}
	start, end := DateRange(msgs)
	if start != "2025-06-10" || end != "2025-06-15" {
		t.Fatalf("DateRange = (%q, %q)", start, end)
	}

	start, end = DateRange(nil)
	if start != "" || end != "" {
		t.Fatalf("DateRange(nil) = (%q, %q), want empty", start, end)
	}
}

func TestFormatContent(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	msgs := []db.Message{
		msgAt(0, now, "bob", "second line"),
		msgAt(1, now, "", "first line"),
	}
	msgs[1].SenderName = "Alice Smith"

	got := FormatContent(msgs)
	want := "[2025-06-14] Alice Smith: first line\n[2025-06-15] @bob: second line"
	if got != want {
		t.Fatalf("FormatContent =\n%q\nwant\n%q", got, want)
	}
}

func TestFormatContentSynthesizedSender(t *testing.T) {
	msgs := []db.Message{{SenderID: 123, Text: "hi", Date: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)}}
	got := FormatContent(msgs)
	if !strings.Contains(got, "ID:123") {
		t.Fatalf("FormatContent = %q, want synthesized sender", got)
	}
}

func TestNewFromDirNoProvider(t *testing.T) {
	s, err := NewFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewFromDir: %v", err)
	}
	if s != nil {
		t.Fatal("expected nil summarizer when no provider file exists")
	}
}
