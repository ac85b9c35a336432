// Package summarize calls an OpenAI-compatible completion API to condense
// stored group messages, in batch or as a stream of text fragments. The
// active provider is selected by credential files checked in a fixed
// priority order.
package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/groupgist/groupgist/db"
	"github.com/groupgist/groupgist/telegram"
)

// providerConfig is one provider credential file: {api_key, base_url, model}.
type providerConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// providers in priority order; the first existing file wins.
var providers = []struct {
	name         string
	file         string
	defaultBase  string
	defaultModel string
}{
	{"tongyi", "tongyi_config.json", "https://dashscope.aliyuncs.com/compatible-mode/v1", "qwen-plus"},
	{"ollama", "ollama_config.json", "http://localhost:11434/v1", "llama3"},
	{"zhipu", "zhipu_config.json", "https://open.bigmodel.cn/api/paas/v4", "glm-4-flash"},
	{"deepseek", "deepseek_config.json", "https://api.deepseek.com/v1", "deepseek-chat"},
}

// Summarizer wraps the configured completion client and prompt templates.
type Summarizer struct {
	client   *openai.Client
	model    string
	provider string
	prompts  *PromptsConfig
}

// Chunk is one streamed summary fragment. A non-nil Err terminates the stream.
type Chunk struct {
	Content string
	Err     error
}

// NewFromDir selects the provider from credential files under dir and loads
// the optional prompts.json. Returns (nil, nil) when no provider file exists;
// summarization is then disabled.
func NewFromDir(dir string) (*Summarizer, error) {
	prompts, err := LoadPromptsConfig(filepath.Join(dir, "prompts.json"))
	if err != nil {
		return nil, err
	}

	for _, p := range providers {
		path := filepath.Join(dir, p.file)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read provider config %s: %w", path, err)
		}
		var pc providerConfig
		if err := json.Unmarshal(data, &pc); err != nil {
			return nil, fmt.Errorf("parse provider config %s: %w", path, err)
		}
		if pc.BaseURL == "" {
			pc.BaseURL = p.defaultBase
		}
		if pc.Model == "" {
			pc.Model = p.defaultModel
		}
		clientCfg := openai.DefaultConfig(pc.APIKey)
		clientCfg.BaseURL = pc.BaseURL
		slog.Info("summarizer initialized", slog.String("provider", p.name), slog.String("model", pc.Model))
		return &Summarizer{
			client:   openai.NewClientWithConfig(clientCfg),
			model:    pc.Model,
			provider: p.name,
			prompts:  prompts,
		}, nil
	}
	return nil, nil
}

// Provider names the active backend.
func (s *Summarizer) Provider() string { return s.provider }

// Summarize runs one batch completion over the given messages.
func (s *Summarizer) Summarize(ctx context.Context, groupTitle string, msgs []db.Message) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, s.request(groupTitle, msgs))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Stream starts a streaming completion and relays each delta as one Chunk.
// The channel is closed after the final fragment or a terminal error chunk.
func (s *Summarizer) Stream(ctx context.Context, groupTitle string, msgs []db.Message) (<-chan Chunk, error) {
	req := s.request(groupTitle, msgs)
	req.Stream = true
	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("start completion stream: %w", err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case out <- Chunk{Err: err}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- Chunk{Content: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Summarizer) request(groupTitle string, msgs []db.Message) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.prompts.GroupSummary.System},
			{Role: openai.ChatMessageRoleUser, Content: s.prompts.FormatUserPrompt(groupTitle, FormatContent(msgs))},
		},
		MaxTokens: s.prompts.GroupSummary.MaxTokens,
	}
}

// FormatContent renders messages as prompt lines "[date] sender: text",
// oldest first. Input is expected newest first, as stored.
func FormatContent(msgs []db.Message) string {
	lines := make([]string, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		sender := telegram.SenderDisplayName(m.SenderUsername, m.SenderName, m.SenderID)
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", m.Date.UTC().Format("2006-01-02"), sender, m.Text))
	}
	return strings.Join(lines, "\n")
}

// FilterWindow keeps messages whose timestamp falls within the trailing
// days-long window ending at now. days <= 0 means no filtering. Timestamps
// are compared in UTC.
func FilterWindow(msgs []db.Message, days int, now time.Time) []db.Message {
	if days <= 0 {
		return msgs
	}
	cutoff := now.UTC().AddDate(0, 0, -days)
	out := make([]db.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Date.UTC().Before(cutoff) {
			out = append(out, m)
		}
	}
	return out
}

// DateRange returns the oldest and newest message dates as YYYY-MM-DD.
// Input is newest first.
func DateRange(msgs []db.Message) (start, end string) {
	if len(msgs) == 0 {
		return "", ""
	}
	return msgs[len(msgs)-1].Date.UTC().Format("2006-01-02"),
		msgs[0].Date.UTC().Format("2006-01-02")
}
