package predictor

import (
	_ "embed"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/scenariolab/foresight/internal/model"
)

//go:embed experts.yaml
var expertsYAML []byte

type expertTable struct {
	Experts []expertTableEntry `yaml:"experts"`
}

type expertTableEntry struct {
	Name               string   `yaml:"name"`
	Role               string   `yaml:"role"`
	Specialization     string   `yaml:"specialization"`
	SubSpecializations []string `yaml:"sub_specializations"`
	InformationSources []string `yaml:"information_sources"`
	ExpertiseLevel     string   `yaml:"expertise_level"`
	ResearchFocus      string   `yaml:"research_focus"`
}

// domainRule maps name keywords to a synthesized domain profile.
type domainRule struct {
	keywords []string
	pred     model.ExpertPrediction
}

// Synthesizer derives a plausible prediction from an expert name alone.
// It is pure and offline: the same name always yields the same prediction.
type Synthesizer struct {
	byName map[string]model.ExpertPrediction
	names  []string // normalized keys, for partial matching
	rules  []domainRule
}

// NewSynthesizer loads the built-in expert table.
func NewSynthesizer() *Synthesizer {
	var table expertTable
	// The table is embedded and validated by tests; a broken document
	// degrades to keyword/generic synthesis rather than failing startup.
	_ = yaml.Unmarshal(expertsYAML, &table)

	s := &Synthesizer{
		byName: make(map[string]model.ExpertPrediction, len(table.Experts)),
		rules:  domainRules(),
	}
	for _, e := range table.Experts {
		key := normalizeName(e.Name)
		level := model.ExpertiseLevel(e.ExpertiseLevel)
		if !model.ValidExpertiseLevel(e.ExpertiseLevel) {
			level = model.ExpertiseSpecialist
		}
		s.byName[key] = model.ExpertPrediction{
			Role:               e.Role,
			Specialization:     e.Specialization,
			SubSpecializations: e.SubSpecializations,
			InformationSources: e.InformationSources,
			ExpertiseLevel:     level,
			ResearchFocus:      e.ResearchFocus,
		}
		s.names = append(s.names, key)
	}
	return s
}

// Synthesize returns a fully-populated prediction for name. Resolution
// order: exact table match, partial table match, keyword domain
// classification, generic template.
func (s *Synthesizer) Synthesize(name string) model.ExpertPrediction {
	key := normalizeName(name)

	if pred, ok := s.byName[key]; ok {
		return pred
	}

	if key != "" {
		for _, known := range s.names {
			if strings.Contains(key, known) || strings.Contains(known, key) {
				return s.byName[known]
			}
		}
	}

	for _, rule := range s.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(key, kw) {
				return rule.pred
			}
		}
	}

	return genericPrediction(name)
}

// genericPrediction builds the last-resort template, parameterized by the
// final token of the name so distinct names stay distinguishable.
func genericPrediction(name string) model.ExpertPrediction {
	token := strings.TrimSpace(name)
	if fields := strings.Fields(token); len(fields) > 0 {
		token = fields[len(fields)-1]
	}
	if token == "" {
		token = "Analyst"
	}

	return model.ExpertPrediction{
		Role:           "Business Strategy Consultant",
		Specialization: "Corporate strategy and scenario planning",
		SubSpecializations: []string{
			"market analysis",
			"competitive positioning",
			"long-range planning",
		},
		InformationSources: []string{
			"industry reports",
			"financial statements",
			"trade publications",
		},
		ExpertiseLevel: model.ExpertiseSpecialist,
		ResearchFocus:  "Strategic outlook development in the " + token + " practice",
	}
}

// normalizeName lowercases, strips diacritics, and collapses whitespace so
// matching tolerates unicode variants of the same name.
func normalizeName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

func domainRules() []domainRule {
	return []domainRule{
		{
			keywords: []string{"tech", "digital", "ai", "software", "cyber"},
			pred: model.ExpertPrediction{
				Role:               "Technology Strategist",
				Specialization:     "Digital transformation and emerging technology",
				SubSpecializations: []string{"ai adoption", "platform strategy", "technology roadmapping"},
				InformationSources: []string{"technology research firms", "developer surveys", "patent databases"},
				ExpertiseLevel:     model.ExpertiseExpert,
				ResearchFocus:      "How emerging technology reshapes competitive advantage",
			},
		},
		{
			keywords: []string{"finance", "capital", "bank", "invest"},
			pred: model.ExpertPrediction{
				Role:               "Financial Analyst",
				Specialization:     "Corporate finance and capital markets",
				SubSpecializations: []string{"valuation", "capital allocation", "macro risk"},
				InformationSources: []string{"financial filings", "central bank publications", "market data"},
				ExpertiseLevel:     model.ExpertiseExpert,
				ResearchFocus:      "Capital market signals for long-horizon strategy",
			},
		},
		{
			keywords: []string{"market", "brand", "consumer", "customer"},
			pred: model.ExpertPrediction{
				Role:               "Marketing Strategist",
				Specialization:     "Consumer insight and brand strategy",
				SubSpecializations: []string{"segmentation", "brand equity", "channel strategy"},
				InformationSources: []string{"consumer panels", "retail data", "brand trackers"},
				ExpertiseLevel:     model.ExpertiseExpert,
				ResearchFocus:      "Multi-year shifts in consumer demand and channels",
			},
		},
		{
			keywords: []string{"energy", "climate", "sustain", "green"},
			pred: model.ExpertPrediction{
				Role:               "Sustainability Analyst",
				Specialization:     "Energy transition and climate strategy",
				SubSpecializations: []string{"decarbonization pathways", "regulatory outlook", "energy economics"},
				InformationSources: []string{"IEA reports", "climate policy trackers", "commodity markets"},
				ExpertiseLevel:     model.ExpertiseExpert,
				ResearchFocus:      "Business exposure to the energy transition",
			},
		},
		{
			keywords: []string{"supply", "operations", "logistics", "manufactur"},
			pred: model.ExpertPrediction{
				Role:               "Operations Strategist",
				Specialization:     "Supply chain and operations strategy",
				SubSpecializations: []string{"network design", "resilience planning", "sourcing strategy"},
				InformationSources: []string{"trade statistics", "freight indices", "supplier surveys"},
				ExpertiseLevel:     model.ExpertiseExpert,
				ResearchFocus:      "Structural change in global supply networks",
			},
		},
	}
}
