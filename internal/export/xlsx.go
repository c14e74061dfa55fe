// Package export renders the chart as a spreadsheet.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dentalvoice/internal/chart"
	"dentalvoice/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetName   = "Chart"
	SummaryName = "Summary"
)

var conditionFills = map[string]string{
	models.ConditionHealthy:   "#FFFFFF",
	models.ConditionRemoved:   "#D9D9D9",
	models.ConditionCavity:    "#FFC7CE",
	models.ConditionCrown:     "#FFEB9C",
	models.ConditionRootCanal: "#F4B084",
	models.ConditionCracked:   "#FF9999",
	models.ConditionFilling:   "#C6EFCE",
}

var headers = []string{"Tooth", "Arch", "Condition", "Confidence", "Notes", "Updated"}

// WriteChart writes an xlsx workbook with one row per tooth to w.
func WriteChart(w io.Writer, teeth []chart.Tooth, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("error creating style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}
	_ = f.SetCellStyle(SheetName, "A1", "F1", headerStyle)

	styles := make(map[string]int)
	for i, tooth := range teeth {
		row := i + 2
		_ = f.SetCellValue(SheetName, fmt.Sprintf("A%d", row), tooth.Number)
		_ = f.SetCellValue(SheetName, fmt.Sprintf("B%d", row), arch(tooth.Number))
		_ = f.SetCellValue(SheetName, fmt.Sprintf("C%d", row), tooth.Condition)
		if tooth.Confidence != nil {
			_ = f.SetCellValue(SheetName, fmt.Sprintf("D%d", row), *tooth.Confidence)
		}
		_ = f.SetCellValue(SheetName, fmt.Sprintf("E%d", row), tooth.Notes)
		if !tooth.UpdatedAt.IsZero() {
			_ = f.SetCellValue(SheetName, fmt.Sprintf("F%d", row), tooth.UpdatedAt.Format("2006-01-02 15:04"))
		}

		styleID, err := conditionStyle(f, styles, tooth.Condition)
		if err == nil {
			cell := fmt.Sprintf("C%d", row)
			_ = f.SetCellStyle(SheetName, cell, cell, styleID)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "B", 10)
	_ = f.SetColWidth(SheetName, "C", "C", 14)
	_ = f.SetColWidth(SheetName, "D", "D", 12)
	_ = f.SetColWidth(SheetName, "E", "E", 40)
	_ = f.SetColWidth(SheetName, "F", "F", 18)

	if err := writeSummary(f, teeth, generatedAt); err != nil {
		return err
	}

	_ = f.DeleteSheet("Sheet1")

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveChart writes the workbook into dir and returns its path.
func SaveChart(dir string, teeth []chart.Tooth, generatedAt time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}
	path := filepath.Join(dir, FileName(generatedAt))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteChart(file, teeth, generatedAt); err != nil {
		file.Close()
		return "", err
	}
	return path, file.Close()
}

func FileName(generatedAt time.Time) string {
	return fmt.Sprintf("chart_%s.xlsx", generatedAt.Format("2006-01-02_15-04-05"))
}

func writeSummary(f *excelize.File, teeth []chart.Tooth, generatedAt time.Time) error {
	if _, err := f.NewSheet(SummaryName); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.SetCellValue(SummaryName, "A1", "Generated")
	_ = f.SetCellValue(SummaryName, "B1", generatedAt.Format(time.RFC3339))

	counts := make(map[string]int)
	for _, t := range teeth {
		counts[t.Condition]++
	}
	row := 2
	for _, condition := range models.ToothConditions {
		_ = f.SetCellValue(SummaryName, fmt.Sprintf("A%d", row), condition)
		_ = f.SetCellValue(SummaryName, fmt.Sprintf("B%d", row), counts[condition])
		row++
	}
	_ = f.SetColWidth(SummaryName, "A", "A", 14)
	_ = f.SetColWidth(SummaryName, "B", "B", 24)
	return nil
}

func conditionStyle(f *excelize.File, cache map[string]int, condition string) (int, error) {
	if id, ok := cache[condition]; ok {
		return id, nil
	}
	color, ok := conditionFills[condition]
	if !ok {
		color = "#FFFFFF"
	}
	id, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "top"},
	})
	if err != nil {
		return 0, err
	}
	cache[condition] = id
	return id, nil
}

// arch names the jaw in universal numbering.
func arch(number int) string {
	if number <= 16 {
		return "upper"
	}
	return "lower"
}
