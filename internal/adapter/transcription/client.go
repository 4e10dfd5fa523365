// Package transcription implements the audio transcription collaborator over
// a Whisper-compatible HTTP endpoint.
package transcription

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

// Client implements domain.TranscriptionClient.
type Client struct {
	cfg config.Config
	hc  *http.Client
}

// New constructs a transcription client with the configured timeout.
func New(cfg config.Config) *Client {
	timeout := cfg.TranscriptionTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{cfg: cfg, hc: &http.Client{Timeout: timeout}}
}

type transcribeRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcribeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Transcribe posts the audio URL to the transcription service and returns the
// transcript text. Transient upstream failures are retried with exponential
// backoff; 4xx responses fail immediately.
func (c *Client) Transcribe(ctx context.Context, audioURL string) (string, error) {
	if strings.TrimSpace(audioURL) == "" {
		return "", fmt.Errorf("%w: audio url required", domain.ErrInvalidArgument)
	}

	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier

	start := time.Now()
	var text string
	operation := func() error {
		var err error
		text, err = c.transcribeOnce(ctx, audioURL)
		return err
	}
	err := backoff.Retry(operation, backoff.WithContext(expo, ctx))
	observability.TranscriptionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) transcribeOnce(ctx context.Context, audioURL string) (string, error) {
	body, _ := json.Marshal(transcribeRequest{AudioURL: audioURL})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TranscriptionURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("op=transcription.request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.TranscriptionAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.TranscriptionAPIKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", backoff.Permanent(fmt.Errorf("op=transcription.call: %w", ctx.Err()))
		}
		slog.Warn("transcription call failed, will retry", slog.Any("error", err))
		return "", fmt.Errorf("op=transcription.call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		slog.Warn("transcription service rate limited", slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("op=transcription.call: %w", domain.ErrUpstreamRateLimit)
	case resp.StatusCode >= 500:
		slog.Warn("transcription service error, will retry", slog.Int("status", resp.StatusCode))
		return "", fmt.Errorf("op=transcription.call: status %d: %w", resp.StatusCode, domain.ErrInternal)
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", backoff.Permanent(fmt.Errorf("op=transcription.call: status %d: %s: %w", resp.StatusCode, string(snippet), domain.ErrInvalidArgument))
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("op=transcription.decode: %w", domain.ErrSchemaInvalid))
	}
	if out.Error != "" {
		return "", backoff.Permanent(fmt.Errorf("op=transcription.result: %s: %w", out.Error, domain.ErrInternal))
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", backoff.Permanent(fmt.Errorf("op=transcription.result: empty transcript: %w", domain.ErrSchemaInvalid))
	}
	return out.Text, nil
}
