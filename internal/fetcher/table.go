// Package fetcher parses uploaded lead files (CSV, TSV and XLSX) into a header
// row and typed data rows.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-import/internal/model"
)

// Format is an upload container format.
type Format int

const (
	FormatCSV Format = iota
	FormatTSV
	FormatXLSX
)

func (f Format) String() string {
	switch f {
	case FormatTSV:
		return "tsv"
	case FormatXLSX:
		return "xlsx"
	default:
		return "csv"
	}
}

// zipMagic starts every XLSX file.
var zipMagic = []byte("PK\x03\x04")

// DetectFormat picks a parser from the file extension, falling back to
// content sniffing for XLSX uploads with a misleading name.
func DetectFormat(filename string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".tsv", ".tab":
		return FormatTSV
	}
	if bytes.HasPrefix(data, zipMagic) {
		return FormatXLSX
	}
	return FormatCSV
}

// Table is a parsed upload. Every row has exactly len(Header) cells.
type Table struct {
	Format Format
	Header []string
	Rows   [][]model.Value
}

// Parse errors callers may test for.
var (
	ErrEmptyFile = eris.New("fetcher: file is empty")
	ErrNoRows    = eris.New("fetcher: file has no data rows")
)

// ParseTable parses an upload. The first non-blank row is the header; fully
// blank rows are dropped. Blank header cells, and cells past the end of the
// header, are named column_N; repeated names get a " (2)", " (3)" suffix so
// every column is addressable.
func ParseTable(ctx context.Context, filename string, data []byte) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	format := DetectFormat(filename, data)
	var (
		records [][]model.Value
		err     error
	)
	switch format {
	case FormatXLSX:
		records, err = ReadXLSXBytes(data, XLSXOptions{})
	case FormatTSV:
		records, err = readDelimited(ctx, data, '\t')
	default:
		records, err = readDelimited(ctx, data, 0)
	}
	if err != nil {
		return nil, err
	}

	records = dropBlank(records)
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	if len(records) == 1 {
		return nil, ErrNoRows
	}

	// Trailing blank cells past the header do not widen the table.
	width := len(records[0])
	for _, rec := range records[1:] {
		for i := len(rec) - 1; i >= width; i-- {
			if !rec[i].Blank() {
				width = i + 1
				break
			}
		}
	}
	header := headerNames(records[0], width)
	rows := make([][]model.Value, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]model.Value, width)
		copy(row, rec[:min(len(rec), width)])
		rows = append(rows, row)
	}
	return &Table{Format: format, Header: header, Rows: rows}, nil
}

func dropBlank(records [][]model.Value) [][]model.Value {
	out := records[:0]
	for _, rec := range records {
		for _, v := range rec {
			if !v.Blank() {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

// headerNames names width columns. Blank or missing header cells become
// column_N and repeats get the first free " (N)" suffix, skipping names that
// appear literally elsewhere in the header.
func headerNames(cells []model.Value, width int) []string {
	names := make([]string, width)
	taken := make(map[string]bool, width)
	for i := range names {
		if i < len(cells) {
			names[i] = cells[i].Text()
		}
		if names[i] == "" {
			names[i] = fmt.Sprintf("column_%d", i+1)
		}
		taken[names[i]] = true
	}

	used := make(map[string]bool, width)
	for i, name := range names {
		if used[name] {
			for n := 2; ; n++ {
				candidate := fmt.Sprintf("%s (%d)", name, n)
				if !taken[candidate] {
					name = candidate
					taken[name] = true
					break
				}
			}
		}
		used[name] = true
		names[i] = name
	}
	return names
}
