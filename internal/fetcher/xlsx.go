package fetcher

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/lead-import/internal/model"
)

// XLSXOptions configures the XLSX parser.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadXLSXBytes reads one sheet of an in-memory XLSX workbook. Cells keep
// their spreadsheet type: numbers stay numbers, booleans stay booleans and
// empty cells are null. Date-formatted cells are read as their display text.
func ReadXLSXBytes(data []byte, opts XLSXOptions) ([][]model.Value, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	rows := make([][]model.Value, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		rows = append(rows, rowToValues(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}

	return f.Sheets[opts.SheetIndex], nil
}

func rowToValues(row *xlsx.Row) []model.Value {
	vals := make([]model.Value, len(row.Cells))
	for j, cell := range row.Cells {
		vals[j] = cellValue(cell)
	}
	return vals
}

func cellValue(cell *xlsx.Cell) model.Value {
	if cell == nil {
		return model.Null()
	}
	switch cell.Type() {
	case xlsx.CellTypeBool:
		return model.Bool(cell.Bool())
	case xlsx.CellTypeNumeric:
		if isDateFormat(cell.GetNumberFormat()) {
			return model.Text(cell.String())
		}
		if f, err := cell.Float(); err == nil {
			return model.Number(f)
		}
	}
	return model.Text(cell.String())
}

func isDateFormat(format string) bool {
	return strings.ContainsAny(strings.ToLower(format), "dmyh")
}
