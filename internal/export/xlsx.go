// Package export turns completed analyses into external artifacts: xlsx
// workbooks and Notion pages.
package export

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/scenariolab/foresight/internal/model"
)

// BuildWorkbook renders an analysis into a workbook: a summary sheet plus
// one sheet per target year. The analysis must carry compiled results.
func BuildWorkbook(scenario *model.Scenario, analysis *model.Analysis) (*xlsx.File, error) {
	if len(analysis.Results) == 0 {
		return nil, eris.New("export: analysis has no compiled results")
	}

	f := xlsx.NewFile()
	if err := addSummarySheet(f, scenario, analysis); err != nil {
		return nil, err
	}
	for _, r := range analysis.Results {
		if err := addYearSheet(f, r); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// SaveWorkbook writes the workbook for analysis to path.
func SaveWorkbook(scenario *model.Scenario, analysis *model.Analysis, path string) error {
	f, err := BuildWorkbook(scenario, analysis)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	return nil
}

func addSummarySheet(f *xlsx.File, scenario *model.Scenario, analysis *model.Analysis) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	addPair(sheet, "Theme", scenario.Theme)
	addPair(sheet, "Current Strategy", scenario.CurrentStrategy)
	addPair(sheet, "Status", string(analysis.Status))
	addPair(sheet, "Progress", fmt.Sprintf("%d%%", analysis.Progress))
	addPair(sheet, "Target Years", joinYears(analysis.Results))
	addPair(sheet, "Analysis ID", analysis.ID)

	sheet.AddRow()
	header := sheet.AddRow()
	for _, h := range []string{"Year", "Experts", "Scenario Length"} {
		header.AddCell().Value = h
	}
	for _, r := range analysis.Results {
		row := sheet.AddRow()
		row.AddCell().Value = fmt.Sprintf("%d", r.Year)
		row.AddCell().Value = fmt.Sprintf("%d", len(r.ExpertAnalyses))
		row.AddCell().Value = fmt.Sprintf("%d", len(r.ScenarioText))
	}
	return nil
}

func addYearSheet(f *xlsx.File, r model.YearResult) error {
	sheet, err := f.AddSheet(fmt.Sprintf("%d", r.Year))
	if err != nil {
		return eris.Wrapf(err, "export: add sheet for year %d", r.Year)
	}

	header := sheet.AddRow()
	for _, h := range []string{"Expert", "Role", "Analysis", "Recommendations"} {
		header.AddCell().Value = h
	}
	for _, ea := range r.ExpertAnalyses {
		row := sheet.AddRow()
		row.AddCell().Value = ea.ExpertName
		row.AddCell().Value = ea.ExpertRole
		row.AddCell().Value = ea.Content
		row.AddCell().Value = strings.Join(ea.Recommendations, "; ")
	}

	sheet.AddRow()
	addPair(sheet, "Scenario", r.ScenarioText)
	addPair(sheet, "Long-term Perspective", r.LongTermPerspective)
	addPair(sheet, "Strategic Alignment", r.StrategicAlignment)
	addPair(sheet, "Integrated Simulation", r.IntegratedSimulation)
	return nil
}

func addPair(sheet *xlsx.Sheet, label, value string) {
	row := sheet.AddRow()
	row.AddCell().Value = label
	row.AddCell().Value = value
}

func joinYears(results []model.YearResult) string {
	years := make([]string, 0, len(results))
	for _, r := range results {
		years = append(years, fmt.Sprintf("%d", r.Year))
	}
	return strings.Join(years, ", ")
}
