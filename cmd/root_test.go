package main

import (
	"errors"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-import/internal/apperr"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"migrate", "import", "resolve", "merge", "runs", "config"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadimport", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	for _, name := range []string{"tenant", "actor"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "root should have --%s", name)
	}
}

func TestImportCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range importCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"create", "map", "preview", "execute", "rows", "batch"}
	for _, name := range expected {
		assert.True(t, names[name], "import should have subcommand %q", name)
	}
}

func TestImportCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"map", "mapping-file", "suggest"} {
		assert.NotNil(t, importMapCmd.Flags().Lookup(flagName), "import map should have --%s flag", flagName)
		assert.NotNil(t, importBatchCmd.Flags().Lookup(flagName), "import batch should have --%s flag", flagName)
	}

	page := importRowsCmd.Flags().Lookup("page")
	require.NotNil(t, page)
	assert.Equal(t, "1", page.DefValue)

	key := importCreateCmd.Flags().Lookup("key")
	require.NotNil(t, key)
	assert.Equal(t, "", key.DefValue)
}

func TestResolveCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"run", "row", "action", "lead", "choose", "reason"} {
		assert.NotNil(t, resolveCmd.Flags().Lookup(flagName), "resolve should have --%s flag", flagName)
	}
	for _, flagName := range []string{"primary", "merged", "choose", "reason"} {
		assert.NotNil(t, mergeCmd.Flags().Lookup(flagName), "merge should have --%s flag", flagName)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", apperr.Validation("bad"), 2},
		{"not found", apperr.NotFound("gone"), 3},
		{"conflict", apperr.Conflict("busy"), 4},
		{"internal", apperr.Internal(errors.New("disk"), "store"), 1},
		{"plain", errors.New("unknown flag"), 1},
		{"wrapped validation", eris.Wrap(apperr.Validation("bad"), "import create"), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}
