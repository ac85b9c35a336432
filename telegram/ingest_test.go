package telegram

import (
	"testing"
)

func TestResolveGroupKey(t *testing.T) {
	lookupBeta := func(group string) (int64, bool) {
		if group == "@beta" {
			return 42, true
		}
		return 0, false
	}

	cases := []struct {
		name         string
		groups       []string
		chatUsername string
		chatTitle    string
		chatID       int64
		lookup       func(string) (int64, bool)
		wantKey      string
		wantOK       bool
	}{
		{
			name:         "exact username match",
			groups:       []string{"@alpha"},
			chatUsername: "alpha",
			wantKey:      "@alpha",
			wantOK:       true,
		},
		{
			name:         "case-insensitive username scan",
			groups:       []string{"@GoNews"},
			chatUsername: "gonews",
			wantKey:      "@GoNews",
			wantOK:       true,
		},
		{
			name:         "username match wins over title entry",
			groups:       []string{"Alpha Chat", "@alpha"},
			chatUsername: "alpha",
			chatTitle:    "Alpha Chat",
			wantKey:      "@alpha",
			wantOK:       true,
		},
		{
			name:    "entity lookup by chat id",
			groups:  []string{"@beta"},
			chatID:  42,
			lookup:  lookupBeta,
			wantKey: "@beta",
			wantOK:  true,
		},
		{
			name:      "title equality fallback",
			groups:    []string{"My Group"},
			chatTitle: "My Group",
			wantKey:   "My Group",
			wantOK:    true,
		},
		{
			name:         "unwatched chat",
			groups:       []string{"@alpha"},
			chatUsername: "other",
			chatTitle:    "Other Chat",
			wantOK:       false,
		},
		{
			name:      "empty watch-list",
			chatTitle: "Anything",
			wantOK:    false,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			key, ok := resolveGroupKey(c.groups, c.chatUsername, c.chatTitle, c.chatID, c.lookup)
			if ok != c.wantOK || key != c.wantKey {
				t.Fatalf("resolveGroupKey = (%q, %v), want (%q, %v)", key, ok, c.wantKey, c.wantOK)
			}
		})
	}
}

func TestSenderDisplayName(t *testing.T) {
	cases := []struct {
		username, name string
		id             int64
		want           string
	}{
		{"gopher", "Go Pher", 7, "@gopher"},
		{"", "Go Pher", 7, "Go Pher"},
		{"", "", 7, "ID:7"},
		{"", "", -1001234, "ID:-1001234"},
	}
	for _, c := range cases {
		if got := SenderDisplayName(c.username, c.name, c.id); got != c.want {
			t.Errorf("SenderDisplayName(%q, %q, %d) = %q, want %q", c.username, c.name, c.id, got, c.want)
		}
	}
}
