package scoring_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/adapter/scoring"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/config"
	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

const analysisJSON = `{
  "overall_score": 81,
  "recommendation": "hire",
  "strengths": ["ownership"],
  "red_flags": [],
  "summary": "Solid answers with good depth. Candidate communicates clearly. Recommended.",
  "responses": [{"response_id": "r1", "score": 8, "feedback": "Thorough."}]
}`

func chatBody(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
}

func testConfig(url string) config.Config {
	return config.Config{
		AppEnv:         "test",
		ScoringBaseURL: url,
		ScoringAPIKey:  "sk-test",
		ScoringModel:   "gpt-4o-mini",
	}
}

func sampleInput() (domain.Application, []domain.InterviewResponse) {
	app := domain.Application{ID: "64f1b2c3d4e5f60718293a4b", CandidateName: "Dana", JobTitle: "Backend Engineer"}
	responses := []domain.InterviewResponse{{
		ID:                  "r1",
		Question:            "Describe a production incident you handled.",
		TranscriptText:      "We had a cascading failure in the payment pipeline...",
		TranscriptionStatus: domain.TranscriptionCompleted,
	}}
	return app, responses
}

func TestAnalyze_Success(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])
		_ = json.NewEncoder(w).Encode(chatBody(analysisJSON))
	}))
	defer srv.Close()

	c := scoring.New(testConfig(srv.URL), scoring.DefaultRubric())
	app, responses := sampleInput()
	a, err := c.Analyze(context.Background(), app, responses)
	require.NoError(t, err)
	assert.True(t, a.Success)
	assert.Equal(t, 81.0, a.OverallScore)
	assert.Equal(t, "hire", a.Recommendation)
	require.Len(t, a.Responses, 1)
	assert.Equal(t, "Describe a production incident you handled.", a.Responses[0].Question)
}

func TestAnalyze_NoResponses(t *testing.T) {
	t.Parallel()
	c := scoring.New(testConfig("http://unused"), scoring.DefaultRubric())
	_, err := c.Analyze(context.Background(), domain.Application{}, nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAnalyze_MissingAPIKey(t *testing.T) {
	t.Parallel()
	cfg := testConfig("http://unused")
	cfg.ScoringAPIKey = ""
	c := scoring.New(cfg, scoring.DefaultRubric())
	app, responses := sampleInput()
	_, err := c.Analyze(context.Background(), app, responses)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAnalyze_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(chatBody("```json\n" + analysisJSON + "\n```"))
	}))
	defer srv.Close()

	c := scoring.New(testConfig(srv.URL), scoring.DefaultRubric())
	app, responses := sampleInput()
	a, err := c.Analyze(context.Background(), app, responses)
	require.NoError(t, err)
	assert.Equal(t, "hire", a.Recommendation)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestAnalyze_InvalidSchemaFromModel(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(chatBody(`{"overall_score": 300, "recommendation": "hire", "summary": "x"}`))
	}))
	defer srv.Close()

	c := scoring.New(testConfig(srv.URL), scoring.DefaultRubric())
	app, responses := sampleInput()
	_, err := c.Analyze(context.Background(), app, responses)
	require.ErrorIs(t, err, domain.ErrSchemaInvalid)
}
