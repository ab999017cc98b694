// Package assist asks an OpenAI-compatible chat completions API for
// checklist suggestions.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Martyparty1988/Martyai/internal/config"
)

// maxItems caps the suggestions taken from one answer.
const maxItems = 8

// Client is a chat completions client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	properties map[string]string
	httpClient *http.Client
}

// NewClient creates a client from the assistant config. properties maps
// property keys to display names used in the prompt.
func NewClient(cfg config.AssistantConfig, properties []config.Property) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	names := make(map[string]string, len(properties))
	for _, p := range properties {
		names[p.Key] = p.Name
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		properties: names,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = `You are an assistant for a vacation rental management system.
You generate checklists for cleaning and maintenance tasks.
The task is for property: %s
Based on the task title, list 3-5 specific, actionable subtasks.
Respond with a JSON array of strings.`

// Checklist returns suggested checklist items for a task title.
func (c *Client) Checklist(ctx context.Context, title, property string) ([]string, error) {
	name := c.properties[property]
	if name == "" {
		name = property
	}

	answer, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: fmt.Sprintf(systemPrompt, name)},
		{Role: "user", Content: fmt.Sprintf("Generate subtasks for: %q", title)},
	})
	if err != nil {
		return nil, err
	}
	return ParseChecklist(answer), nil
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("API returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

var listMarker = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)

// ParseChecklist extracts items from a model answer: a JSON array of
// strings, an object with a "subtasks" array, or bulleted or numbered
// lines. Anything else yields nil.
func ParseChecklist(answer string) []string {
	text := strings.TrimSpace(answer)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var items []string
	if err := json.Unmarshal([]byte(text), &items); err == nil {
		return clean(items)
	}

	var wrapped struct {
		Subtasks []string `json:"subtasks"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err == nil {
		return clean(wrapped.Subtasks)
	}

	for _, line := range strings.Split(text, "\n") {
		if listMarker.MatchString(line) {
			items = append(items, listMarker.ReplaceAllString(line, ""))
		}
	}
	return clean(items)
}

func clean(items []string) []string {
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == maxItems {
			break
		}
	}
	return out
}
