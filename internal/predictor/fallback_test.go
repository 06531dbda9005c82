package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenariolab/foresight/internal/model"
)

func TestSynthesizeExactMatch(t *testing.T) {
	s := NewSynthesizer()
	pred := s.Synthesize("Michael Porter")
	assert.Equal(t, "Competitive Strategy Authority", pred.Role)
	assert.Equal(t, model.ExpertiseSenior, pred.ExpertiseLevel)
}

func TestSynthesizeMatchIsCaseAndSpacingInsensitive(t *testing.T) {
	s := NewSynthesizer()
	canonical := s.Synthesize("Michael Porter")

	assert.Equal(t, canonical, s.Synthesize("  michael   PORTER "))
	// Diacritics fold away during normalization.
	assert.Equal(t, canonical, s.Synthesize("Míchael Pörter"))
}

func TestSynthesizePartialMatch(t *testing.T) {
	s := NewSynthesizer()
	assert.Equal(t, s.Synthesize("Michael Porter"), s.Synthesize("Porter"))
	assert.Equal(t, s.Synthesize("Daniel Kahneman"), s.Synthesize("Kahneman"))
}

func TestSynthesizeKeywordRules(t *testing.T) {
	s := NewSynthesizer()

	tests := []struct {
		name     string
		wantRole string
	}{
		{"Head of Digital Futures", "Technology Strategist"},
		{"Capital Markets Desk", "Financial Analyst"},
		{"Consumer Insight Lead", "Marketing Strategist"},
		{"Climate Risk Advisor", "Sustainability Analyst"},
		{"Global Logistics Partner", "Operations Strategist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantRole, s.Synthesize(tt.name).Role)
		})
	}
}

func TestSynthesizeGenericTemplate(t *testing.T) {
	s := NewSynthesizer()
	pred := s.Synthesize("John Smith")

	assert.Equal(t, "Business Strategy Consultant", pred.Role)
	assert.Equal(t, model.ExpertiseSpecialist, pred.ExpertiseLevel)
	assert.Contains(t, pred.ResearchFocus, "Smith")
}

func TestSynthesizeNeverEmpty(t *testing.T) {
	s := NewSynthesizer()
	for _, name := range []string{
		"",
		"   ",
		"X",
		"李明",
		"Jean-Luc d'Arcy",
		"\t\n",
	} {
		pred := s.Synthesize(name)
		assert.False(t, pred.Empty(), "name %q must synthesize a populated prediction", name)
		assert.True(t, model.ValidExpertiseLevel(string(pred.ExpertiseLevel)))
	}
}

func TestSynthesizeDeterministic(t *testing.T) {
	s := NewSynthesizer()
	for _, name := range []string{"Michael Porter", "Climate Risk Advisor", "John Smith", ""} {
		assert.Equal(t, s.Synthesize(name), s.Synthesize(name))
	}
}

func TestEmbeddedTableLoads(t *testing.T) {
	s := NewSynthesizer()
	require.NotEmpty(t, s.byName)
	for key, pred := range s.byName {
		assert.NotEmpty(t, key)
		assert.False(t, pred.Empty(), "table entry %q must be populated", key)
	}
}
