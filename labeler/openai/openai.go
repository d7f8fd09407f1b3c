// Package openai provides a Labeler backed by the OpenAI
// chat-completions API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	textclass "github.com/G-Pavel-H/GPT-Text-Classification-App"
)

const defaultBaseURL = "https://api.openai.com/v1"

// labelingTemperature keeps the reply deterministic enough to be a
// single label.
const labelingTemperature = 0.2

// Labeler calls the OpenAI chat-completions endpoint to categorize text.
type Labeler struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

var _ textclass.Labeler = (*Labeler)(nil)

// Option configures a Labeler.
type Option func(*Labeler)

// WithBaseURL overrides the API base URL (for proxies and tests).
func WithBaseURL(url string) Option {
	return func(l *Labeler) { l.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient sets the HTTP client (default http.DefaultClient).
func WithHTTPClient(c *http.Client) Option {
	return func(l *Labeler) { l.client = c }
}

// New creates an OpenAI-backed Labeler.
func New(apiKey string, opts ...Option) *Labeler {
	l := &Labeler{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

// Label asks the model to pick the most appropriate label for the text.
func (l *Labeler) Label(ctx context.Context, text string, labels []textclass.LabelDef, model string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You are an assistant that categorizes text based on provided labels and definitions.",
			},
			{
				Role:    "user",
				Content: buildPrompt(text, labels),
			},
		},
		Temperature: labelingTemperature,
	})
	if err != nil {
		return "", err
	}

	url := l.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("openai api returned no choices")
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}

func buildPrompt(text string, labels []textclass.LabelDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Categorize the following text into one of the provided labels based on their definitions:\n\nText: %q\n\nLabels and Definitions:\n", text)
	for i, label := range labels {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, label.Name, label.Definition)
	}
	b.WriteString("\nPlease respond with the most appropriate label only.")
	return b.String()
}
