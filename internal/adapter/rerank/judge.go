package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"kbase/internal/port"
)

// LLMJudge scores candidates through an OpenAI-compatible chat completions
// endpoint. The judging model is opaque; only the index/score contract
// matters here.
type LLMJudge struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type judgeVerdict struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewLLMJudge creates a judge client. The API key is read from the named
// environment variable.
func NewLLMJudge(apiKeyEnv, model, baseURL string, timeout time.Duration) (*LLMJudge, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &LLMJudge{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Judge asks the model to score every item by relevance to the query on a
// 0-10 scale. Any transport, API or parse problem is returned as an error;
// the caller falls back to its original order.
func (j *LLMJudge) Judge(ctx context.Context, query string, items []port.JudgeItem) ([]port.JudgeScore, error) {
	if len(items) == 0 {
		return nil, nil
	}

	prompt := buildPrompt(query, items)

	reqBody := chatRequest{
		Model: j.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   200,
		Temperature: 0,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("API returned no choices")
	}

	return parseVerdicts(chatResp.Choices[0].Message.Content)
}

// ModelName returns the judging model name.
func (j *LLMJudge) ModelName() string {
	return j.model
}

func buildPrompt(query string, items []port.JudgeItem) string {
	var sb strings.Builder
	sb.WriteString("Return a JSON array of objects with fields index (int) and score (0-10). ")
	sb.WriteString("Score each item by relevance to the question. Use all items.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nItems:\n")
	for i, item := range items {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "%d. %s", item.Index, item.Text)
	}
	return sb.String()
}

// parseVerdicts extracts the score array from the model output. Models
// sometimes wrap JSON in markdown fences; anything else unexpected is an
// error, never a panic.
func parseVerdicts(content string) ([]port.JudgeScore, error) {
	content = stripFences(strings.TrimSpace(content))

	var verdicts []judgeVerdict
	if err := json.Unmarshal([]byte(content), &verdicts); err != nil {
		return nil, fmt.Errorf("failed to parse judge output: %w", err)
	}

	scores := make([]port.JudgeScore, 0, len(verdicts))
	for _, v := range verdicts {
		scores = append(scores, port.JudgeScore{Index: v.Index, Score: v.Score})
	}
	return scores, nil
}

func stripFences(content string) string {
	if idx := strings.Index(content, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(content[start:], "```"); end != -1 {
			return strings.TrimSpace(content[start : start+end])
		}
	}
	if idx := strings.Index(content, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(content[start:], "```"); end != -1 {
			return strings.TrimSpace(content[start : start+end])
		}
	}
	return content
}
