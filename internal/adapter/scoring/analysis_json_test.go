package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

const goodJSON = `{
  "overall_score": 78,
  "recommendation": "hire",
  "strengths": ["clear communicator"],
  "red_flags": [],
  "summary": "Strong candidate overall. Communicates well. Some gaps in distributed systems knowledge.",
  "responses": [{"response_id": "r1", "score": 8, "feedback": "Good structure."}]
}`

func TestParseAnalysisOut_Plain(t *testing.T) {
	t.Parallel()
	out, err := parseAnalysisOut(goodJSON)
	require.NoError(t, err)
	assert.Equal(t, 78.0, out.OverallScore)
	assert.Equal(t, "hire", out.Recommendation)
	require.Len(t, out.Responses, 1)
	assert.Equal(t, "r1", out.Responses[0].ResponseID)
}

func TestParseAnalysisOut_StripsFencesAndProse(t *testing.T) {
	t.Parallel()
	cases := []string{
		"```json\n" + goodJSON + "\n```",
		"```\n" + goodJSON + "\n```",
		"Here is the evaluation:\n" + goodJSON,
	}
	for _, raw := range cases {
		out, err := parseAnalysisOut(raw)
		require.NoError(t, err)
		assert.Equal(t, "hire", out.Recommendation)
	}
}

func TestParseAnalysisOut_Garbage(t *testing.T) {
	t.Parallel()
	_, err := parseAnalysisOut("the model refused to answer")
	require.ErrorIs(t, err, domain.ErrSchemaInvalid)
}

func TestValidateAnalysisOut(t *testing.T) {
	t.Parallel()
	base, err := parseAnalysisOut(goodJSON)
	require.NoError(t, err)
	require.NoError(t, validateAnalysisOut(base))

	bad := base
	bad.OverallScore = 140
	require.ErrorIs(t, validateAnalysisOut(bad), domain.ErrSchemaInvalid)

	bad = base
	bad.Recommendation = "strong hire"
	require.ErrorIs(t, validateAnalysisOut(bad), domain.ErrSchemaInvalid)

	bad = base
	bad.Summary = "  "
	require.ErrorIs(t, validateAnalysisOut(bad), domain.ErrSchemaInvalid)

	bad = base
	bad.Responses[0].Score = 11
	require.ErrorIs(t, validateAnalysisOut(bad), domain.ErrSchemaInvalid)
	bad.Responses[0].Score = 8 // restore shared slice
}

func TestToAnalysis_FillsQuestions(t *testing.T) {
	t.Parallel()
	out, err := parseAnalysisOut(goodJSON)
	require.NoError(t, err)
	responses := []domain.InterviewResponse{{ID: "r1", Question: "Tell me about a hard bug."}}
	a := toAnalysis(out, "gpt-4o-mini", responses)
	assert.True(t, a.Success)
	assert.Equal(t, "gpt-4o-mini", a.Model)
	require.Len(t, a.Responses, 1)
	assert.Equal(t, "Tell me about a hard bug.", a.Responses[0].Question)
}
