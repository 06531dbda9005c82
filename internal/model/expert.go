package model

import "time"

// ExpertiseLevel grades how senior an expert's viewpoint is.
type ExpertiseLevel string

const (
	ExpertiseSpecialist ExpertiseLevel = "specialist"
	ExpertiseExpert     ExpertiseLevel = "expert"
	ExpertiseSenior     ExpertiseLevel = "senior"
)

// ValidExpertiseLevel reports whether s is one of the known levels.
func ValidExpertiseLevel(s string) bool {
	switch ExpertiseLevel(s) {
	case ExpertiseSpecialist, ExpertiseExpert, ExpertiseSenior:
		return true
	default:
		return false
	}
}

// Expert is a panel member whose persona drives phase-1 analysis.
// Once an analysis starts, the pipeline works from a read-only snapshot;
// later edits to the record do not affect in-flight runs.
type Expert struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Role               string         `json:"role"`
	Specialization     string         `json:"specialization"`
	SubSpecializations []string       `json:"sub_specializations"`
	InformationSources []string       `json:"information_sources"`
	ExpertiseLevel     ExpertiseLevel `json:"expertise_level"`
	ResearchFocus      string         `json:"research_focus"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// ExpertPrediction is the metadata the predictor derives for an expert name,
// either from the upstream model or from fallback synthesis.
type ExpertPrediction struct {
	Role               string         `json:"role"`
	Specialization     string         `json:"specialization"`
	SubSpecializations []string       `json:"sub_specializations"`
	InformationSources []string       `json:"information_sources"`
	ExpertiseLevel     ExpertiseLevel `json:"expertise_level"`
	ResearchFocus      string         `json:"research_focus"`
}

// Empty reports whether the prediction carries no usable content.
// ExpertiseLevel alone does not count: a level with no substance behind it
// is not a prediction.
func (p ExpertPrediction) Empty() bool {
	return p.Role == "" &&
		p.Specialization == "" &&
		len(p.SubSpecializations) == 0 &&
		len(p.InformationSources) == 0 &&
		p.ResearchFocus == ""
}
