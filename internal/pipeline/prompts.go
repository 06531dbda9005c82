package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scenariolab/foresight/internal/model"
)

const analysisSystemPrompt = `You are part of an expert panel producing multi-year business scenario analyses. Write in clear, direct prose for a strategy audience. Follow the output format the task specifies exactly.`

// expertAnalysisPrompt asks one expert persona to analyze the scenario for
// one target year. The response is requested as JSON so recommendations can
// be split out; a prose response is still accepted downstream.
func expertAnalysisPrompt(scenario *model.Scenario, expert model.Expert, year int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Adopt the persona of %s, %s specializing in %s.\n", expert.Name, expert.Role, expert.Specialization)
	if expert.ResearchFocus != "" {
		fmt.Fprintf(&b, "Research focus: %s.\n", expert.ResearchFocus)
	}
	if len(expert.InformationSources) > 0 {
		fmt.Fprintf(&b, "You reason from sources such as: %s.\n", strings.Join(expert.InformationSources, ", "))
	}
	fmt.Fprintf(&b, "\nTheme: %s\nCurrent strategy: %s\n", scenario.Theme, scenario.CurrentStrategy)
	fmt.Fprintf(&b, "\nAnalyze how this theme will have developed by %d from your specialist viewpoint, in roughly %d characters.\n", year, scenario.CharacterCount)
	b.WriteString(`Respond with a single JSON object: {"content": "<analysis>", "recommendations": ["<action>", ...]}.`)
	return b.String()
}

// yearScenarioPrompt synthesizes one narrative scenario for a year from the
// expert analyses collected for it.
func yearScenarioPrompt(scenario *model.Scenario, year int, analyses []model.ExpertAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Synthesize a single coherent scenario narrative for the year %d.\n", year)
	fmt.Fprintf(&b, "Theme: %s\nCurrent strategy: %s\n", scenario.Theme, scenario.CurrentStrategy)
	if len(analyses) == 0 {
		b.WriteString("\nNo expert analyses are available for this year; reason from the theme alone.\n")
	} else {
		b.WriteString("\nExpert analyses for this year:\n")
		for _, a := range analyses {
			fmt.Fprintf(&b, "\n--- %s (%s) ---\n%s\n", a.ExpertName, a.ExpertRole, a.Content)
		}
	}
	fmt.Fprintf(&b, "\nWrite the scenario in roughly %d characters of plain prose.", scenario.CharacterCount)
	return b.String()
}

// longTermPrompt views the aggregated scenarios from a vantage point a
// decade past the furthest target year.
func longTermPrompt(scenario *model.Scenario, vantageYear int, yearScenarios map[int]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Looking back from the year %d, assess the long-term trajectory implied by these scenarios.\n", vantageYear)
	fmt.Fprintf(&b, "Theme: %s\n", scenario.Theme)
	b.WriteString(formatYearScenarios(yearScenarios))
	b.WriteString("\nDescribe the structural forces that persist beyond the planning horizon, in plain prose.")
	return b.String()
}

// alignmentPrompt evaluates the current strategy against every scenario plus
// the long-term perspective.
func alignmentPrompt(scenario *model.Scenario, yearScenarios map[int]string, longTerm string) string {
	var b strings.Builder
	b.WriteString("Evaluate how well the current strategy aligns with the scenarios below.\n")
	fmt.Fprintf(&b, "Current strategy: %s\n", scenario.CurrentStrategy)
	b.WriteString(formatYearScenarios(yearScenarios))
	fmt.Fprintf(&b, "\nLong-term perspective:\n%s\n", longTerm)
	b.WriteString("\nIdentify alignment strengths, gaps, and the decisions the strategy forces, in plain prose.")
	return b.String()
}

// simulationPrompt produces the final integrated simulation over everything
// generated so far.
func simulationPrompt(scenario *model.Scenario, yearScenarios map[int]string, longTerm, alignment string) string {
	var b strings.Builder
	b.WriteString("Produce an integrated simulation of how the organization fares if it holds its current strategy.\n")
	fmt.Fprintf(&b, "Theme: %s\nCurrent strategy: %s\n", scenario.Theme, scenario.CurrentStrategy)
	b.WriteString(formatYearScenarios(yearScenarios))
	fmt.Fprintf(&b, "\nLong-term perspective:\n%s\n\nStrategic alignment evaluation:\n%s\n", longTerm, alignment)
	b.WriteString("\nNarrate the simulation and close with the pivotal decisions it surfaces, in plain prose.")
	return b.String()
}

func formatYearScenarios(yearScenarios map[int]string) string {
	years := make([]int, 0, len(yearScenarios))
	for y := range yearScenarios {
		years = append(years, y)
	}
	sort.Ints(years)

	var b strings.Builder
	for _, y := range years {
		text := yearScenarios[y]
		if text == "" {
			text = "(no scenario available)"
		}
		fmt.Fprintf(&b, "\nScenario for %d:\n%s\n", y, text)
	}
	return b.String()
}
