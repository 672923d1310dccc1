package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func gradebook() Dataset {
	return Dataset{
		Title:   "Go Basics gradebook",
		Headers: []string{"Student", "Progress %", "Quiz 1"},
		Rows: []map[string]string{
			{"Student": "Ana", "Progress %": "75", "Quiz 1": "9"},
			{"Student": "Budi", "Progress %": "100"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(gradebook())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Progress %,Quiz 1", lines[0])
	assert.Equal(t, "Budi,100,", lines[2])
}

func TestExportersRequireHeaders(t *testing.T) {
	for _, r := range []Renderer{NewCSVExporter(), NewPDFExporter(), NewXLSXExporter()} {
		_, err := r.Render(Dataset{})
		assert.Error(t, err, r.Extension())
	}
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(gradebook())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(gradebook())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	sheet := f.GetSheetName(0)
	assert.Equal(t, "Go Basics gradebook", sheet)
	header, err := f.GetCellValue(sheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Student", header)
	progress, err := f.GetCellValue(sheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "100", progress)
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "ab", sheetName("a/b"))
	assert.Len(t, []rune(sheetName(strings.Repeat("x", 50))), 31)
	assert.Equal(t, defaultSheet, sheetName("[]"))
}
