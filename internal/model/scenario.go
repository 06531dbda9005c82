package model

import "time"

// Character-count bounds for generated scenario narratives.
const (
	MinCharacterCount = 500
	MaxCharacterCount = 2500
)

// Scenario is the user-submitted planning brief. Immutable after creation;
// TargetYears defines the fan-out cardinality for phases 1 and 2.
type Scenario struct {
	ID              string    `json:"id"`
	Theme           string    `json:"theme"`
	CurrentStrategy string    `json:"current_strategy"`
	TargetYears     []int     `json:"target_years"`
	CharacterCount  int       `json:"character_count"`
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
}

// ClampCharacterCount forces CharacterCount into the allowed range,
// substituting the midpoint when unset.
func (s *Scenario) ClampCharacterCount() {
	switch {
	case s.CharacterCount == 0:
		s.CharacterCount = 1500
	case s.CharacterCount < MinCharacterCount:
		s.CharacterCount = MinCharacterCount
	case s.CharacterCount > MaxCharacterCount:
		s.CharacterCount = MaxCharacterCount
	}
}

// MaxTargetYear returns the largest target year, or 0 for an empty slice.
func (s Scenario) MaxTargetYear() int {
	maxYear := 0
	for _, y := range s.TargetYears {
		if y > maxYear {
			maxYear = y
		}
	}
	return maxYear
}
