package agent

import (
	"fmt"
	"math"
	"time"
)

// ValidationError reports an agent attribute outside its accepted range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Demographics describes an agent's social position.
type Demographics struct {
	Age            int    `json:"age"`
	Gender         string `json:"gender"`
	Occupation     string `json:"occupation"`
	Location       string `json:"location"`
	EducationLevel string `json:"education_level"`
	IncomeBracket  string `json:"income_bracket,omitempty"`
}

// Personality holds the five-factor trait scores, each within [0, 1].
type Personality struct {
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`
}

// Validate checks that every trait sits within [0, 1].
func (p Personality) Validate() error {
	traits := []struct {
		name  string
		value float64
	}{
		{"openness", p.Openness},
		{"conscientiousness", p.Conscientiousness},
		{"extraversion", p.Extraversion},
		{"agreeableness", p.Agreeableness},
		{"neuroticism", p.Neuroticism},
	}
	for _, t := range traits {
		if math.IsNaN(t.value) || t.value < 0 || t.value > 1 {
			return &ValidationError{Field: t.name, Reason: "must be within [0, 1]"}
		}
	}
	return nil
}

// Goal is an objective an agent pursues. Progress starts at zero and
// moves toward one.
type Goal struct {
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Progress    float64    `json:"progress"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}
