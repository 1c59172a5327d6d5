package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/lance13c/qarun/internal/types"
)

const (
	summarySheet = "Summary"
	stepsSheet   = "Steps"

	patternType  = "pattern"
	patternValue = 1
	failBgColor  = "FFC7CE"
	passBgColor  = "C6EFCE"
)

var (
	summaryHeaders = []string{"Test Case", "Result", "Steps", "Duration (ms)", "Error"}
	stepHeaders    = []string{"Test Case", "Step", "Goal", "Action", "Status", "Error", "Screenshot"}
)

// WriteXLSX writes a workbook with a summary sheet and a steps sheet.
func WriteXLSX(path string, rep *types.Report, title string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(stepsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	passStyle, err := fillStyle(f, passBgColor)
	if err != nil {
		return err
	}
	failStyle, err := fillStyle(f, failBgColor)
	if err != nil {
		return err
	}

	if title != "" {
		f.SetDocProps(&excelize.DocProperties{Title: title})
	}

	writeRow(f, summarySheet, 1, toCells(summaryHeaders))
	for i, res := range rep.Results {
		row := i + 2
		result, style := "FAIL", failStyle
		if res.Pass {
			result, style = "PASS", passStyle
		}
		writeRow(f, summarySheet, row, []interface{}{res.Name, result, len(res.Steps), res.DurationMs, res.Error})
		cell, _ := excelize.CoordinatesToCellName(2, row)
		f.SetCellStyle(summarySheet, cell, cell, style)
	}
	f.SetColWidth(summarySheet, "A", "A", 30)
	f.SetColWidth(summarySheet, "E", "E", 60)

	writeRow(f, stepsSheet, 1, toCells(stepHeaders))
	row := 2
	for _, res := range rep.Results {
		for _, step := range res.Steps {
			writeRow(f, stepsSheet, row, []interface{}{
				res.Name, step.Step, step.Goal, step.Action, string(step.Status), step.Error, step.Screenshot,
			})
			if step.Failed() {
				cell, _ := excelize.CoordinatesToCellName(5, row)
				f.SetCellStyle(stepsSheet, cell, cell, failStyle)
			}
			row++
		}
	}
	f.SetColWidth(stepsSheet, "A", "A", 30)
	f.SetColWidth(stepsSheet, "C", "C", 40)
	f.SetColWidth(stepsSheet, "F", "G", 50)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save XLSX report: %w", err)
	}
	return nil
}

func fillStyle(f *excelize.File, color string) (int, error) {
	style, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{
			Type:    patternType,
			Pattern: patternValue,
			Color:   []string{color},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create style: %w", err)
	}
	return style, nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func writeRow(f *excelize.File, sheet string, row int, cells []interface{}) {
	for i, v := range cells {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, v)
	}
}
