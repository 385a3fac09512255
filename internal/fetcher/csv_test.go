package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/lead-import/internal/model"
)

func collectRows(t *testing.T, rowCh <-chan []string, errCh <-chan error) ([][]string, error) {
	t.Helper()
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_Basic(t *testing.T) {
	input := "a,b,c\n1,2,3\n4,5,6\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b", "c"}, rows[0])
	assert.Equal(t, []string{"4", "5", "6"}, rows[2])
}

func TestStreamCSV_PipeDelimitedTrimmed(t *testing.T) {
	input := " a | b \n1|2\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{
		Delimiter: '|',
		TrimSpace: true,
	})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_MalformedQuote(t *testing.T) {
	input := "a,b\n\"unterminated,2\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(input), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader("a\n1\n"), CSVOptions{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want rune
	}{
		{"comma", "a,b,c\n1,2,3", ','},
		{"tab", "a\tb\tc\n", '\t'},
		{"semicolon", "name;email;city\n", ';'},
		{"pipe", "a|b\n", '|'},
		{"quoted commas ignored", "\"Acme, LLC\";\"x,y\";z\n", ';'},
		{"single column", "name\nacme\n", ','},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sniffDelimiter([]byte(tt.in)))
		})
	}
}

func TestReadDelimited_DecodesWindows1252(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().String("Company,City\nCafé Olé,Montréal\n")
	require.NoError(t, err)

	records, err := readDelimited(context.Background(), []byte(encoded), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Café Olé", records[1][0].Text())
	assert.Equal(t, "Montréal", records[1][1].Text())
}

func TestReadDelimited_StripsBOMAndNullsBlanks(t *testing.T) {
	records, err := readDelimited(context.Background(), []byte("\xEF\xBB\xBFName,Phone\nAcme,  \n"), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Name", records[0][0].Text())
	assert.Equal(t, model.KindString, records[1][0].Kind())
	assert.True(t, records[1][1].IsNull())
}
