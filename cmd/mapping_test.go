package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-import/internal/apperr"
	"github.com/sells-group/lead-import/internal/model"
)

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"business_name=Company Name", " email = E-mail ", "website=url=x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"business_name": "Company Name",
		"email":         "E-mail",
		"website":       "url=x",
	}, got)

	for _, bad := range [][]string{
		{"business_name"},
		{"=Company"},
		{"email="},
		{"email=A", "email=B"},
	} {
		_, err := parseAssignments(bad)
		assert.True(t, apperr.Is(err, apperr.KindValidation), "%v", bad)
	}
}

func TestParseChoices(t *testing.T) {
	got, err := parseChoices([]string{"email=Incoming", "phone=existing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]model.FieldChoice{
		model.FieldEmail: model.ChoiceIncoming,
		model.FieldPhone: model.ChoiceExisting,
	}, got)

	empty, err := parseChoices(nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestLoadMappingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("business_name: Company\nemail: \"E-mail Address\"\n"), 0o644))

	m, err := loadMappingFile(path)
	require.NoError(t, err)
	assert.Equal(t, model.ColumnMapping{
		model.FieldBusinessName: "Company",
		model.FieldEmail:        "E-mail Address",
	}, m)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- just\n- a list\n"), 0o644))
	_, err = loadMappingFile(bad)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = loadMappingFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func newMappingCmd(t *testing.T, flags map[string]string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addMappingFlags(cmd)
	for k, v := range flags {
		require.NoError(t, cmd.Flags().Set(k, v))
	}
	return cmd
}

func TestMappingFromFlags(t *testing.T) {
	headers := []string{"Company", "E-mail", "Notes"}

	m, err := mappingFromFlags(newMappingCmd(t, map[string]string{"suggest": "true"}), headers)
	require.NoError(t, err)
	assert.Equal(t, "Company", m[model.FieldBusinessName])
	assert.Equal(t, "E-mail", m[model.FieldEmail])

	m, err = mappingFromFlags(newMappingCmd(t, map[string]string{"map": "business_name=Notes"}), headers)
	require.NoError(t, err)
	assert.Equal(t, model.ColumnMapping{model.FieldBusinessName: "Notes"}, m)

	_, err = mappingFromFlags(newMappingCmd(t, nil), headers)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = mappingFromFlags(newMappingCmd(t, map[string]string{"suggest": "true"}), []string{"Foo", "Bar"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
