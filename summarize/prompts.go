package summarize

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// GroupSummaryPrompt configures the prompt used for group summaries.
type GroupSummaryPrompt struct {
	System       string `json:"system"`
	UserTemplate string `json:"user_template"`
	MaxTokens    int    `json:"max_tokens"`
}

// PromptsConfig is the optional prompts.json document.
type PromptsConfig struct {
	GroupSummary GroupSummaryPrompt `json:"group_summary"`
}

// LoadPromptsConfig reads prompts.json from path. A missing file yields the
// defaults; a malformed file is an error.
func LoadPromptsConfig(path string) (*PromptsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPromptsConfig(), nil
		}
		return nil, fmt.Errorf("read prompts config: %w", err)
	}
	var cfg PromptsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse prompts config %s: %w", path, err)
	}
	cfg.fillDefaults()
	return &cfg, nil
}

func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()
	if c.GroupSummary.System == "" {
		c.GroupSummary.System = defaults.GroupSummary.System
	}
	if c.GroupSummary.UserTemplate == "" {
		c.GroupSummary.UserTemplate = defaults.GroupSummary.UserTemplate
	}
	if c.GroupSummary.MaxTokens == 0 {
		c.GroupSummary.MaxTokens = defaults.GroupSummary.MaxTokens
	}
}

// FormatUserPrompt substitutes the template placeholders.
func (c *PromptsConfig) FormatUserPrompt(groupName, content string) string {
	out := c.GroupSummary.UserTemplate
	out = strings.ReplaceAll(out, "{group_name}", groupName)
	out = strings.ReplaceAll(out, "{content}", content)
	return out
}

// DefaultPromptsConfig returns the built-in prompts.
func DefaultPromptsConfig() *PromptsConfig {
	return &PromptsConfig{
		GroupSummary: GroupSummaryPrompt{
			System: `You are a professional conversation summarizer. Summarize group chat history into a clear digest.

Requirements:
1. Group the discussion by topic and call out key decisions, questions, and links.
2. Attribute important statements to their senders.
3. Keep the summary concise; skip small talk.`,
			UserTemplate: "Summarize the recent messages from the group \"{group_name}\":\n\n{content}",
			MaxTokens:    3000,
		},
	}
}
