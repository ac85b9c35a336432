package summarize

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPromptsConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadPromptsConfig(filepath.Join(t.TempDir(), "prompts.json"))
	if err != nil {
		t.Fatalf("LoadPromptsConfig: %v", err)
	}
	def := DefaultPromptsConfig()
	if cfg.GroupSummary.System != def.GroupSummary.System {
		t.Fatal("missing file must yield default system prompt")
	}
	if cfg.GroupSummary.MaxTokens != 3000 {
		t.Fatalf("MaxTokens = %d, want 3000", cfg.GroupSummary.MaxTokens)
	}
}

func TestLoadPromptsConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	doc := `{"group_summary": {"system": "custom system prompt"}}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadPromptsConfig(path)
	if err != nil {
		t.Fatalf("LoadPromptsConfig: %v", err)
	}
	if cfg.GroupSummary.System != "custom system prompt" {
		t.Fatalf("System = %q", cfg.GroupSummary.System)
	}
	// Unset fields fall back to defaults.
	if cfg.GroupSummary.UserTemplate == "" || cfg.GroupSummary.MaxTokens != 3000 {
		t.Fatal("unset fields must fall back to defaults")
	}
}

func TestLoadPromptsConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	if err := os.WriteFile(path, []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPromptsConfig(path); err == nil {
		t.Fatal("expected error for malformed prompts file")
	}
}

func TestFormatUserPrompt(t *testing.T) {
	cfg := DefaultPromptsConfig()
	got := cfg.FormatUserPrompt("Go News", "[2025-01-01] @a: hi")
	if !strings.Contains(got, `"Go News"`) {
		t.Fatalf("prompt missing group name: %q", got)
	}
	if !strings.Contains(got, "[2025-01-01] @a: hi") {
		t.Fatalf("prompt missing content: %q", got)
	}
	if strings.Contains(got, "{group_name}") || strings.Contains(got, "{content}") {
		t.Fatalf("unsubstituted placeholder in %q", got)
	}
}
