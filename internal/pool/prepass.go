package pool

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/observability"
)

// runPrepass transcribes every response that lacks transcript text before the
// worker is spawned; scoring assumes transcripts are already present.
// Per-response failures are recorded on the response and do not abort the
// pass.
func (p *Pool) runPrepass(ctx context.Context, applicationID string, log *slog.Logger) error {
	responses, err := p.d.Responses.ListByApplication(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("op=pool.prepass: list responses: %w", err)
	}
	for _, r := range responses {
		if r.HasTranscript() || r.TranscriptionStatus == domain.TranscriptionSkipped {
			continue
		}
		if ctx.Err() != nil {
			return fmt.Errorf("op=pool.prepass: %w", ctx.Err())
		}
		if r.AudioURL == "" {
			if err := p.d.Responses.SetTranscription(ctx, r.ID, domain.TranscriptionSkipped, "", ""); err != nil {
				log.Warn("mark transcription skipped failed", slog.String("response_id", r.ID), slog.Any("error", err))
			}
			observability.TranscriptionsTotal.WithLabelValues(domain.TranscriptionSkipped).Inc()
			continue
		}
		if err := p.d.Responses.SetTranscription(ctx, r.ID, domain.TranscriptionProcessing, "", ""); err != nil {
			log.Warn("mark transcription processing failed", slog.String("response_id", r.ID), slog.Any("error", err))
		}
		text, err := p.d.Transcriber.Transcribe(ctx, r.AudioURL)
		if err != nil {
			log.Warn("transcription failed",
				slog.String("response_id", r.ID),
				slog.Any("error", err))
			if perr := p.d.Responses.SetTranscription(ctx, r.ID, domain.TranscriptionFailed, "", err.Error()); perr != nil {
				log.Warn("persist transcription failure failed", slog.String("response_id", r.ID), slog.Any("error", perr))
			}
			observability.TranscriptionsTotal.WithLabelValues(domain.TranscriptionFailed).Inc()
			continue
		}
		if err := p.d.Responses.SetTranscription(ctx, r.ID, domain.TranscriptionCompleted, text, ""); err != nil {
			log.Warn("persist transcript failed", slog.String("response_id", r.ID), slog.Any("error", err))
		}
		observability.TranscriptionsTotal.WithLabelValues(domain.TranscriptionCompleted).Inc()
	}
	return nil
}
