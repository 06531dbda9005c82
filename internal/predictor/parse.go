package predictor

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/scenariolab/foresight/internal/model"
)

// rawPrediction mirrors the structured response the model is asked to emit.
// Fields are loose so a partially-malformed response still parses.
type rawPrediction struct {
	Role               string   `json:"role"`
	Specialization     string   `json:"specialization"`
	SubSpecializations []string `json:"sub_specializations"`
	InformationSources []string `json:"information_sources"`
	ExpertiseLevel     string   `json:"expertise_level"`
	ResearchFocus      string   `json:"research_focus"`
}

// parsePrediction extracts and validates the structured prediction from raw
// model output. Invalid enum values coerce to the safe default and missing
// arrays to empty; only an unparseable or content-free document is an error,
// and even that is recovered by the caller through fallback synthesis.
func parsePrediction(text string) (model.ExpertPrediction, error) {
	doc := extractJSON(text)
	if doc == "" {
		return model.ExpertPrediction{}, eris.New("predictor: no JSON object in response")
	}

	var raw rawPrediction
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return model.ExpertPrediction{}, eris.Wrap(err, "predictor: unmarshal prediction")
	}

	pred := model.ExpertPrediction{
		Role:               strings.TrimSpace(raw.Role),
		Specialization:     strings.TrimSpace(raw.Specialization),
		SubSpecializations: raw.SubSpecializations,
		InformationSources: raw.InformationSources,
		ExpertiseLevel:     model.ExpertiseLevel(raw.ExpertiseLevel),
		ResearchFocus:      strings.TrimSpace(raw.ResearchFocus),
	}
	if !model.ValidExpertiseLevel(raw.ExpertiseLevel) {
		pred.ExpertiseLevel = model.ExpertiseSpecialist
	}
	if pred.SubSpecializations == nil {
		pred.SubSpecializations = []string{}
	}
	if pred.InformationSources == nil {
		pred.InformationSources = []string{}
	}

	if pred.Empty() {
		return model.ExpertPrediction{}, eris.New("predictor: prediction has no usable content")
	}
	return pred, nil
}

// extractJSON returns the first top-level JSON object in text, tolerating
// markdown code fences around it.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}
