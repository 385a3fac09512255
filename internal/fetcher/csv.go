package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/lead-import/internal/model"
)

// CSVOptions configures the streaming CSV parser.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	TrimSpace  bool
}

// StreamCSV reads delimited text and sends records to a channel.
// Caller must consume the returned row channel. Errors are sent on the error channel.
// Both channels are closed when processing completes.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		if opts.Delimiter != 0 {
			reader.Comma = opts.Delimiter
		}
		if opts.Comment != 0 {
			reader.Comment = opts.Comment
		}
		reader.LazyQuotes = opts.LazyQuotes
		reader.FieldsPerRecord = -1 // spreadsheets export ragged rows

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if opts.TrimSpace {
				for i, field := range record {
					record[i] = strings.TrimSpace(field)
				}
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// readDelimited decodes an uploaded text file and returns its records with
// blank cells as null. A zero delim is sniffed from the first line.
func readDelimited(ctx context.Context, data []byte, delim rune) ([][]model.Value, error) {
	text := decodeText(data)
	if delim == 0 {
		delim = sniffDelimiter(text)
	}

	rowCh, errCh := StreamCSV(ctx, bytes.NewReader(text), CSVOptions{
		Delimiter:  delim,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var records [][]model.Value
	for rec := range rowCh {
		vals := make([]model.Value, len(rec))
		for i, s := range rec {
			vals[i] = model.Text(s)
		}
		records = append(records, vals)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return records, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText strips a UTF-8 byte order mark and converts non-UTF-8 input,
// assumed to be a Windows-1252 spreadsheet export, to UTF-8.
func decodeText(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return data
	}
	return out
}

// sniffDelimiter picks the candidate separator that occurs most often, outside
// quotes, on the first line.
func sniffDelimiter(data []byte) rune {
	line, _ := bufio.NewReader(bytes.NewReader(data)).ReadString('\n')

	counts := map[rune]int{}
	inQuotes := false
	for _, r := range line {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ',', '\t', ';', '|':
			if !inQuotes {
				counts[r]++
			}
		}
	}

	best := ','
	for _, r := range []rune{'\t', ';', '|'} {
		if counts[r] > counts[best] {
			best = r
		}
	}
	return best
}
