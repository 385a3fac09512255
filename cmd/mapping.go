package main

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/lead-import/internal/apperr"
	"github.com/sells-group/lead-import/internal/leadimport"
	"github.com/sells-group/lead-import/internal/model"
)

// addMappingFlags registers the mutually exclusive mapping sources.
func addMappingFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("map", nil, "field=Header assignment (repeatable)")
	cmd.Flags().String("mapping-file", "", "YAML file of field: Header pairs")
	cmd.Flags().Bool("suggest", false, "derive the mapping from the file's headers")
	cmd.MarkFlagsMutuallyExclusive("map", "mapping-file", "suggest")
}

// parseAssignments splits key=value pairs. Values may contain '=' and keep
// their inner spacing; keys and values are trimmed.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			return nil, apperr.Validation("expected key=value, got %q", p)
		}
		if _, dup := out[k]; dup {
			return nil, apperr.Validation("%q is assigned more than once", k)
		}
		out[k] = v
	}
	return out, nil
}

// parseChoices reads field=existing|incoming pairs.
func parseChoices(pairs []string) (map[string]model.FieldChoice, error) {
	kv, err := parseAssignments(pairs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.FieldChoice, len(kv))
	for k, v := range kv {
		out[k] = model.FieldChoice(strings.ToLower(v))
	}
	return out, nil
}

func loadMappingFile(path string) (model.ColumnMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read mapping file %s", path)
	}
	var m model.ColumnMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, apperr.Invalid(err, "mapping file is not a field: Header map")
	}
	return m, nil
}

// mappingFromFlags builds a column mapping from whichever mapping flag was
// given. headers feed --suggest.
func mappingFromFlags(cmd *cobra.Command, headers []string) (model.ColumnMapping, error) {
	suggest, _ := cmd.Flags().GetBool("suggest")
	file, _ := cmd.Flags().GetString("mapping-file")
	pairs, _ := cmd.Flags().GetStringArray("map")

	switch {
	case suggest:
		m := leadimport.SuggestMapping(headers)
		if len(m) == 0 {
			return nil, apperr.Validation("no header resembles a lead field; use --map")
		}
		return m, nil
	case file != "":
		return loadMappingFile(file)
	case len(pairs) > 0:
		kv, err := parseAssignments(pairs)
		if err != nil {
			return nil, err
		}
		return model.ColumnMapping(kv), nil
	default:
		return nil, apperr.Validation("one of --map, --mapping-file or --suggest is required")
	}
}
