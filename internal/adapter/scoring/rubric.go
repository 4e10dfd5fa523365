package scoring

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rubric defines the weighted dimensions the LLM scores an interview against.
type Rubric struct {
	Dimensions []Dimension `yaml:"dimensions"`
}

// Dimension is one scored axis of the rubric.
type Dimension struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Weight      float64 `yaml:"weight"`
}

// DefaultRubric returns the built-in interview scoring rubric.
func DefaultRubric() Rubric {
	return Rubric{Dimensions: []Dimension{
		{Name: "communication", Description: "Clarity, structure, and conciseness of the candidate's answers.", Weight: 0.25},
		{Name: "technical_depth", Description: "Accuracy and depth of domain and technical knowledge shown.", Weight: 0.35},
		{Name: "problem_solving", Description: "Reasoning quality, trade-off awareness, and handling of ambiguity.", Weight: 0.25},
		{Name: "culture_signal", Description: "Collaboration, ownership, and learning signals in the answers.", Weight: 0.15},
	}}
}

// LoadRubric reads a rubric from a YAML file, falling back to the default
// when path is empty.
func LoadRubric(path string) (Rubric, error) {
	if path == "" {
		return DefaultRubric(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rubric{}, fmt.Errorf("op=rubric.read: %w", err)
	}
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rubric{}, fmt.Errorf("op=rubric.parse: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Rubric{}, err
	}
	return r, nil
}

// Validate checks the rubric has dimensions and weights that sum to one.
func (r Rubric) Validate() error {
	if len(r.Dimensions) == 0 {
		return fmt.Errorf("op=rubric.validate: no dimensions")
	}
	var sum float64
	for _, d := range r.Dimensions {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("op=rubric.validate: dimension with empty name")
		}
		if d.Weight <= 0 {
			return fmt.Errorf("op=rubric.validate: dimension %q has non-positive weight", d.Name)
		}
		sum += d.Weight
	}
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("op=rubric.validate: weights sum to %.3f, want 1.0", sum)
	}
	return nil
}

// PromptSection renders the rubric as a bulleted block for the system prompt.
func (r Rubric) PromptSection() string {
	var b strings.Builder
	for _, d := range r.Dimensions {
		fmt.Fprintf(&b, "- %s (weight %.0f%%): %s\n", d.Name, d.Weight*100, d.Description)
	}
	return b.String()
}
