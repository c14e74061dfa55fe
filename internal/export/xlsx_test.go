package export

import (
	"bytes"
	"os"
	"testing"
	"time"

	"dentalvoice/internal/chart"
	"dentalvoice/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleTeeth() []chart.Tooth {
	c := chart.New()
	conf := 0.8
	c.ApplyResult(&models.RelayResult{
		Findings: []models.Finding{{ToothNumber: 19, Condition: models.ConditionCavity, Confidence: &conf, Notes: "occlusal"}},
	})
	return c.Snapshot()
}

func TestWriteChart(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	require.NoError(t, WriteChart(&buf, sampleTeeth(), at))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName, SummaryName}, f.GetSheetList())

	v, err := f.GetCellValue(SheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Tooth", v)

	// tooth 19 lands on row 20
	v, _ = f.GetCellValue(SheetName, "A20")
	assert.Equal(t, "19", v)
	v, _ = f.GetCellValue(SheetName, "B20")
	assert.Equal(t, "lower", v)
	v, _ = f.GetCellValue(SheetName, "C20")
	assert.Equal(t, models.ConditionCavity, v)
	v, _ = f.GetCellValue(SheetName, "E20")
	assert.Equal(t, "occlusal", v)

	v, _ = f.GetCellValue(SheetName, "B2")
	assert.Equal(t, "upper", v)

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, models.MaxTooth+1)

	v, _ = f.GetCellValue(SummaryName, "B1")
	assert.Equal(t, "2024-05-02T10:30:00Z", v)
	v, _ = f.GetCellValue(SummaryName, "A2")
	assert.Equal(t, models.ConditionHealthy, v)
	v, _ = f.GetCellValue(SummaryName, "B2")
	assert.Equal(t, "31", v)
}

func TestSaveChart(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)

	path, err := SaveChart(dir+"/exports", sampleTeeth(), at)
	require.NoError(t, err)
	assert.Contains(t, path, "chart_2024-05-02_10-30-00.xlsx")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
