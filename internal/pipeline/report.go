package pipeline

import (
	"fmt"
	"strings"

	"github.com/scenariolab/foresight/internal/model"
)

// RenderReport renders compiled results as a markdown report. It is a pure
// function of its inputs: the same scenario and results always produce
// byte-identical output, so reports can be regenerated from stored results.
func RenderReport(scenario *model.Scenario, results []model.YearResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Scenario Analysis: %s\n\n", scenario.Theme)
	fmt.Fprintf(&b, "**Current strategy:** %s\n\n", scenario.CurrentStrategy)

	years := make([]string, 0, len(results))
	for _, r := range results {
		years = append(years, fmt.Sprintf("%d", r.Year))
	}
	fmt.Fprintf(&b, "**Target years:** %s\n", strings.Join(years, ", "))

	for _, r := range results {
		fmt.Fprintf(&b, "\n## Year %d\n", r.Year)

		if len(r.ExpertAnalyses) == 0 {
			b.WriteString("\n_No expert analyses were completed for this year._\n")
		}
		for _, ea := range r.ExpertAnalyses {
			fmt.Fprintf(&b, "\n### %s (%s)\n\n%s\n", ea.ExpertName, ea.ExpertRole, ea.Content)
			if len(ea.Recommendations) > 0 {
				b.WriteString("\n**Recommendations:**\n\n")
				for _, rec := range ea.Recommendations {
					fmt.Fprintf(&b, "- %s\n", rec)
				}
			}
		}

		b.WriteString("\n### Scenario\n\n")
		if r.ScenarioText == "" {
			b.WriteString("_No scenario was generated for this year._\n")
		} else {
			b.WriteString(r.ScenarioText)
			b.WriteString("\n")
		}
	}

	// The phase 3-5 texts are identical across buckets; render them once
	// from the first.
	if len(results) > 0 {
		shared := results[0]
		writeSharedSection(&b, "Long-term Perspective", shared.LongTermPerspective)
		writeSharedSection(&b, "Strategic Alignment", shared.StrategicAlignment)
		writeSharedSection(&b, "Integrated Simulation", shared.IntegratedSimulation)
	}

	return b.String()
}

func writeSharedSection(b *strings.Builder, title, content string) {
	if content == "" {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n%s\n", title, content)
}
