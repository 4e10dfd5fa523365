// Package scoring implements the LLM scoring collaborator over an
// OpenAI-compatible chat completions endpoint.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/config"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/observability"
)

// Client implements domain.ScoringClient.
type Client struct {
	cfg    config.Config
	rubric Rubric
	hc     *http.Client
}

// New constructs a scoring client with the given rubric.
func New(cfg config.Config, rubric Rubric) *Client {
	timeout := cfg.ScoringTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{cfg: cfg, rubric: rubric, hc: &http.Client{Timeout: timeout}}
}

func (c *Client) systemPrompt() string {
	return strings.TrimSpace(`You are an experienced technical interviewer evaluating a candidate's recorded interview answers.
Score the interview against this rubric:
` + c.rubric.PromptSection() + `
Return ONLY valid JSON adhering to this schema (no markdown, no prose):
{
  "overall_score": number between 0 and 100,
  "recommendation": "hire" | "no_hire" | "borderline",
  "strengths": [up to 5 short strings],
  "red_flags": [up to 5 short strings, empty array if none],
  "summary": "3-5 concise sentences",
  "responses": [{"response_id": string, "score": number between 0 and 10, "feedback": "1-2 sentences"}]
}`)
}

func (c *Client) userPrompt(app domain.Application, responses []domain.InterviewResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Candidate: %s\nRole: %s\n", app.CandidateName, app.JobTitle)
	if app.JobDescription != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", truncateToTokens(app.JobDescription, 800))
	}
	b.WriteString("\nInterview answers:\n")
	// Split the remaining budget evenly across answers.
	perResponse := c.cfg.PromptTokenBudget
	if perResponse <= 0 {
		perResponse = 6000
	}
	perResponse /= len(responses)
	for i, r := range responses {
		fmt.Fprintf(&b, "\n[%d] response_id=%s\nQ: %s\nA: %s\n", i+1, r.ID, r.Question, truncateToTokens(r.TranscriptText, perResponse))
	}
	return b.String()
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze scores the application's transcribed responses and returns the
// structured analysis.
func (c *Client) Analyze(ctx context.Context, app domain.Application, responses []domain.InterviewResponse) (*domain.Analysis, error) {
	if len(responses) == 0 {
		return nil, fmt.Errorf("%w: no responses to analyze", domain.ErrInvalidArgument)
	}
	if c.cfg.ScoringAPIKey == "" {
		return nil, fmt.Errorf("%w: SCORING_API_KEY missing", domain.ErrInvalidArgument)
	}

	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier

	system := c.systemPrompt()
	user := c.userPrompt(app, responses)
	slog.Debug("scoring prompt prepared",
		slog.String("application_id", app.ID),
		slog.Int("responses", len(responses)),
		slog.Int("prompt_tokens", countTokens(system)+countTokens(user)))

	start := time.Now()
	var raw string
	operation := func() error {
		var err error
		raw, err = c.chatOnce(ctx, system, user)
		return err
	}
	err := backoff.Retry(operation, backoff.WithContext(expo, ctx))
	observability.ScoringRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	out, err := parseAnalysisOut(raw)
	if err != nil {
		return nil, err
	}
	if err := validateAnalysisOut(out); err != nil {
		return nil, err
	}
	analysis := toAnalysis(out, c.cfg.ScoringModel, responses)
	observability.OverallScoreHistogram.Observe(analysis.OverallScore)
	return analysis, nil
}

func (c *Client) chatOnce(ctx context.Context, system, user string) (string, error) {
	body, _ := json.Marshal(chatRequest{
		Model: c.cfg.ScoringModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:      c.cfg.ScoringMaxTokens,
		Temperature:    0.2,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ScoringBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("op=scoring.request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.ScoringAPIKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(fmt.Errorf("op=scoring.call: %w", ctx.Err()))
		}
		slog.Warn("scoring call failed, will retry", slog.Any("error", err))
		return "", fmt.Errorf("op=scoring.call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		slog.Warn("scoring provider rate limited", slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("op=scoring.call: %w", domain.ErrUpstreamRateLimit)
	case resp.StatusCode >= 500:
		slog.Warn("scoring provider error, will retry", slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("op=scoring.call: status %d: %w", resp.StatusCode, domain.ErrInternal)
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", backoff.Permanent(fmt.Errorf("op=scoring.call: status %d: %s: %w", resp.StatusCode, string(snippet), domain.ErrInvalidArgument))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("op=scoring.decode: %w", domain.ErrSchemaInvalid))
	}
	if out.Error != nil {
		return "", fmt.Errorf("op=scoring.result: %s: %w", out.Error.Message, domain.ErrInternal)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", backoff.Permanent(fmt.Errorf("op=scoring.result: empty completion: %w", domain.ErrSchemaInvalid))
	}
	return out.Choices[0].Message.Content, nil
}
