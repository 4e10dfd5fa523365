package scoring

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/ai-interview-analyzer/internal/domain"
)

// llmAnalysisOut is the JSON contract the scoring prompt instructs the model
// to emit.
type llmAnalysisOut struct {
	OverallScore   float64  `json:"overall_score"`
	Recommendation string   `json:"recommendation"`
	Strengths      []string `json:"strengths"`
	RedFlags       []string `json:"red_flags"`
	Summary        string   `json:"summary"`
	Responses      []struct {
		ResponseID string  `json:"response_id"`
		Score      float64 `json:"score"`
		Feedback   string  `json:"feedback"`
	} `json:"responses"`
}

var validRecommendations = map[string]bool{
	"hire":       true,
	"no_hire":    true,
	"borderline": true,
}

// stripFences removes markdown code fences some models wrap around JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	// Some models prepend prose; cut to the first JSON object.
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	return strings.TrimSpace(s)
}

func parseAnalysisOut(raw string) (llmAnalysisOut, error) {
	var out llmAnalysisOut
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return out, fmt.Errorf("op=scoring.parse: %v: %w", err, domain.ErrSchemaInvalid)
	}
	return out, nil
}

func validateAnalysisOut(o llmAnalysisOut) error {
	if o.OverallScore < 0 || o.OverallScore > 100 {
		return fmt.Errorf("op=scoring.validate: overall_score out of range: %w", domain.ErrSchemaInvalid)
	}
	if !validRecommendations[o.Recommendation] {
		return fmt.Errorf("op=scoring.validate: recommendation %q invalid: %w", o.Recommendation, domain.ErrSchemaInvalid)
	}
	if strings.TrimSpace(o.Summary) == "" {
		return fmt.Errorf("op=scoring.validate: summary empty: %w", domain.ErrSchemaInvalid)
	}
	for _, r := range o.Responses {
		if r.Score < 0 || r.Score > 10 {
			return fmt.Errorf("op=scoring.validate: response %s score out of range: %w", r.ResponseID, domain.ErrSchemaInvalid)
		}
	}
	return nil
}

// toAnalysis converts validated model output to the domain payload, filling
// in question text from the scored responses.
func toAnalysis(o llmAnalysisOut, model string, responses []domain.InterviewResponse) *domain.Analysis {
	questions := make(map[string]string, len(responses))
	for _, r := range responses {
		questions[r.ID] = r.Question
	}
	a := &domain.Analysis{
		Success:        true,
		OverallScore:   o.OverallScore,
		Recommendation: o.Recommendation,
		Strengths:      o.Strengths,
		RedFlags:       o.RedFlags,
		Summary:        strings.TrimSpace(o.Summary),
		Model:          model,
	}
	for _, r := range o.Responses {
		a.Responses = append(a.Responses, domain.ResponseScore{
			ResponseID: r.ResponseID,
			Question:   questions[r.ResponseID],
			Score:      r.Score,
			Feedback:   strings.TrimSpace(r.Feedback),
		})
	}
	return a
}
