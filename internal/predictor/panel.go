package predictor

import (
	"gopkg.in/yaml.v3"

	"github.com/scenariolab/foresight/internal/model"
)

// BuiltinPanel returns the embedded expert table as store-ready records,
// used to seed a fresh database with a working panel. IDs and timestamps
// are left for the store to assign.
func BuiltinPanel() ([]model.Expert, error) {
	var table expertTable
	if err := yaml.Unmarshal(expertsYAML, &table); err != nil {
		return nil, err
	}

	experts := make([]model.Expert, 0, len(table.Experts))
	for _, e := range table.Experts {
		level := model.ExpertiseLevel(e.ExpertiseLevel)
		if !model.ValidExpertiseLevel(e.ExpertiseLevel) {
			level = model.ExpertiseSpecialist
		}
		experts = append(experts, model.Expert{
			Name:               e.Name,
			Role:               e.Role,
			Specialization:     e.Specialization,
			SubSpecializations: e.SubSpecializations,
			InformationSources: e.InformationSources,
			ExpertiseLevel:     level,
			ResearchFocus:      e.ResearchFocus,
		})
	}
	return experts, nil
}
