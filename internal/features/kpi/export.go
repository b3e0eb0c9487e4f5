package kpi

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const maxSheetNameLen = 31

// ExportToExcel writes one sheet per dataset: a row per bucket key and a
// column per field, in first-seen order. Column headers use the field
// captions where the KPI defines them.
func ExportToExcel(def *KPI, result *Result) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return nil, "", err
	}

	captions := columnCaptions(def)
	used := make(map[string]bool)

	for i := range result.Datasets {
		ds := &result.Datasets[i]
		sheetName := uniqueSheetName(ds.Name, used)

		if i == 0 {
			// reuse the default sheet so the workbook has no empty first tab
			if err := f.SetSheetName("Sheet1", sheetName); err != nil {
				return nil, "", err
			}
		} else if _, err := f.NewSheet(sheetName); err != nil {
			return nil, "", err
		}

		if err := writeDataset(f, sheetName, ds, captions, headerStyle); err != nil {
			return nil, "", fmt.Errorf("failed to write sheet %s: %w", sheetName, err)
		}
	}

	if len(result.Datasets) == 0 {
		if err := f.SetCellValue("Sheet1", "A1", "No data"); err != nil {
			return nil, "", err
		}
	}
	f.SetActiveSheet(0)

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("%s_%d.xlsx", def.ID, result.Range.ToMillis)
	return buffer.Bytes(), filename, nil
}

// writeDataset fills an existing sheet with a header row and one row per key.
func writeDataset(f *excelize.File, sheet string, ds *Dataset, captions map[string]string, headerStyle int) error {
	columns := ds.Fields()
	headers := append([]string{"Key"}, columns...)
	for c, col := range headers {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		header := col
		if caption, ok := captions[col]; ok {
			header = caption
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for r, row := range ds.Rows {
		keyCell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, keyCell, row.Key); err != nil {
			return err
		}

		values := make(map[string]any, len(row.Cells))
		for _, cell := range row.Cells {
			values[cell.Field] = cell.Value
		}
		for c, col := range columns {
			v, ok := values[col]
			if !ok {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+2, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	for c := range headers {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, 18); err != nil {
			return err
		}
	}
	return nil
}

// columnCaptions maps column names, including offset aliases, to captions.
func columnCaptions(def *KPI) map[string]string {
	captions := make(map[string]string)
	for i := range def.Fields {
		field := &def.Fields[i]
		if field.Caption != "" {
			captions[field.FieldName] = field.Caption
		}
		if field.OffsetCaption != "" {
			name := field.OffsetColumn()
			if _, taken := captions[name]; !taken {
				captions[name] = field.OffsetCaption
			}
		}
	}
	return captions
}

var sheetNameReplacer = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")")

func uniqueSheetName(name string, used map[string]bool) string {
	base := sheetNameReplacer.Replace(name)
	if base == "" {
		base = "Data"
	}
	base = truncateRunes(base, maxSheetNameLen)

	candidate := base
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := fmt.Sprintf("~%d", n)
		candidate = truncateRunes(base, maxSheetNameLen-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
