package leadimport

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/lead-import/internal/apperr"
	"github.com/sells-group/lead-import/internal/model"
	"github.com/sells-group/lead-import/internal/normalize"
	"github.com/sells-group/lead-import/internal/store"
)

// ValidateMapping checks a mapping's shape: at least one entry, known target
// fields, non-blank sources and every required field present. Header
// membership is checked against the run in SetMapping.
func ValidateMapping(mapping model.ColumnMapping) error {
	if len(mapping) == 0 {
		return apperr.Validation("mapping: at least one field must be mapped")
	}
	fields := make([]string, 0, len(mapping))
	for f := range mapping {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		if !model.IsLeadField(f) {
			return apperr.Validation("mapping: unknown lead field %q", f)
		}
		if strings.TrimSpace(mapping[f]) == "" {
			return apperr.Validation("mapping: field %q has no source column", f)
		}
	}
	for _, f := range model.RequiredLeadFields {
		if _, ok := mapping[f]; !ok {
			return apperr.Validation("mapping: required field %q is not mapped", f)
		}
	}
	return nil
}

// SetMapping stores the column mapping on a run that has not started
// executing and moves it to MAPPED. Remapping a MAPPED run replaces the
// previous mapping.
func (s *Service) SetMapping(ctx context.Context, tenantID, runID string, mapping model.ColumnMapping) (*model.ImportRun, error) {
	if err := ValidateMapping(mapping); err != nil {
		return nil, err
	}

	var run *model.ImportRun
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		run, err = tx.LockRun(ctx, tenantID, runID)
		if err != nil {
			return err
		}
		if run == nil {
			return apperr.NotFound("run %s not found", runID)
		}
		if !run.Status.Mappable() {
			return apperr.Conflict("run %s is %s; mapping can no longer change", runID, run.Status)
		}
		for _, f := range model.LeadFields {
			src, ok := mapping[f]
			if ok && !run.HasHeader(src) {
				return apperr.Validation("mapping: field %q: column %q is not in the file", f, src)
			}
		}

		run.Mapping = copyMapping(mapping)
		run.Status = model.RunStatusMapped
		return tx.UpdateRunState(ctx, run)
	})
	if err != nil {
		return nil, storageErr(err, "import: set mapping")
	}

	zap.L().Info("import: mapping set",
		zap.String("component", "leadimport"),
		zap.String("run_id", runID),
		zap.Int("fields", len(mapping)),
	)
	return run, nil
}

// SuggestMapping proposes a mapping from source headers by matching common
// header spellings. The first header claiming a field wins.
func SuggestMapping(headers []string) model.ColumnMapping {
	m := make(model.ColumnMapping)
	for _, h := range headers {
		f, ok := normalize.FieldForHeader(h)
		if !ok {
			continue
		}
		if _, taken := m[f]; !taken {
			m[f] = h
		}
	}
	return m
}

// payloadFor applies mapping to a row's raw bag, producing values keyed by
// lead field. Required fields must be non-blank.
func payloadFor(mapping model.ColumnMapping, raw model.Fields) (model.Fields, error) {
	payload := make(model.Fields, len(mapping))
	for field, src := range mapping {
		payload[field] = raw.Get(src)
	}
	for _, f := range model.RequiredLeadFields {
		if payload.Get(f).Blank() {
			return nil, apperr.Validation("required field %s is missing (column %q)", f, mapping[f])
		}
	}
	return payload, nil
}

// leadFromPayload builds an unsaved lead from a mapped payload.
func (s *Service) leadFromPayload(tenantID, runID string, payload model.Fields, norm model.Normalized) *model.Lead {
	now := s.now()
	l := &model.Lead{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Norm:        norm,
		SourceRunID: &runID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, f := range model.LeadFields {
		l.SetField(f, payload.Text(f))
	}
	return l
}

func copyMapping(m model.ColumnMapping) model.ColumnMapping {
	out := make(model.ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
