package kpi

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportToExcel(t *testing.T) {
	def := dailyKPI()
	def.Fields[0].Caption = "Day"
	def.Fields[0].OffsetCaption = "Day (last week)"
	def.Fields[1].Caption = "Orders"

	b := NewBuilder(MainRange(1000, 2000, false))
	b.Put("per_day", "2023-11-14", "date", "2023-11-14T00:00:00.000+00:00")
	b.Put("per_day", "2023-11-14", "count", int64(10))
	b.Put("per_day", "2023-11-14", "_date", "2023-11-07T00:00:00.000+00:00")
	b.Put("per_day", "2023-11-15", "count", int64(4))
	b.Put("totals/all", NoKey, "sum", 99.5)
	res := b.Build()

	content, filename, err := ExportToExcel(def, res)
	require.NoError(t, err)
	assert.Equal(t, "orders_per_day_2000.xlsx", filename)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"per_day", "totals_all"}, f.GetSheetList())

	rows, err := f.GetRows("per_day")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Key", "Day", "Orders", "Day (last week)"}, rows[0])
	assert.Equal(t, []string{"2023-11-14", "2023-11-14T00:00:00.000+00:00", "10", "2023-11-07T00:00:00.000+00:00"}, rows[1])
	assert.Equal(t, []string{"2023-11-15", "", "4"}, rows[2])

	v, err := f.GetCellValue("totals_all", "B2")
	require.NoError(t, err)
	assert.Equal(t, "99.5", v)
}

func TestExportToExcel_Empty(t *testing.T) {
	content, _, err := ExportToExcel(scalarKPI(), NewBuilder(MainRange(1, 2, false)).Build())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("Sheet1", "A1")
	require.NoError(t, err)
	assert.Equal(t, "No data", v)
}

func TestWriteDataset_ReportsExcelErrors(t *testing.T) {
	b := NewBuilder(MainRange(1, 2, false))
	b.Put("per_day", "2023-11-14", "count", int64(1))
	res := b.Build()

	f := excelize.NewFile()
	defer f.Close()

	err := writeDataset(f, "missing", &res.Datasets[0], nil, 0)
	assert.Error(t, err)

	require.NoError(t, writeDataset(f, "Sheet1", &res.Datasets[0], nil, 0))
	v, err := f.GetCellValue("Sheet1", "B2")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]bool{}
	long := strings.Repeat("x", 40)

	assert.Equal(t, "a_b", uniqueSheetName("a/b", used))
	assert.Equal(t, "A_b~2", uniqueSheetName("A:b", used))
	assert.Equal(t, "Data", uniqueSheetName("", used))
	assert.Equal(t, "(x)", uniqueSheetName("[x]", used))

	first := uniqueSheetName(long, used)
	second := uniqueSheetName(long, used)
	assert.Len(t, first, maxSheetNameLen)
	assert.Len(t, second, maxSheetNameLen)
	assert.True(t, strings.HasSuffix(second, "~2"))
}
