package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-import/internal/model"
)

const leadColumns = `id, tenant_id, business_name, contact_name, email, phone, website, address, city, state,
	postal_code, email_norm, phone_norm, domain_norm, name_norm, city_norm, merged_into_lead_id, archived,
	source_run_id, created_at, updated_at`

// activeLead restricts a lead query to leads that have not been merged away.
const activeLead = ` AND merged_into_lead_id IS NULL`

func (t *sqlTx) InsertLead(ctx context.Context, l *model.Lead) error {
	_, err := t.c.exec(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		l.ID, l.TenantID, l.BusinessName, l.ContactName, l.Email, l.Phone, l.Website, l.Address, l.City, l.State,
		l.PostalCode, l.Norm.Email, l.Norm.Phone, l.Norm.Domain, l.Norm.Name, l.Norm.City, l.MergedIntoLeadID,
		l.Archived, l.SourceRunID, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return eris.Wrap(err, "store: insert lead")
	}
	return nil
}

func (t *sqlTx) GetLead(ctx context.Context, tenantID, leadID string) (*model.Lead, error) {
	return t.oneLead(ctx, "get lead",
		`SELECT `+leadColumns+` FROM leads WHERE tenant_id = $1 AND id = $2`, tenantID, leadID)
}

func (t *sqlTx) LockLead(ctx context.Context, tenantID, leadID string) (*model.Lead, error) {
	return t.oneLead(ctx, "lock lead",
		`SELECT `+leadColumns+` FROM leads WHERE tenant_id = $1 AND id = $2`+t.lockClause, tenantID, leadID)
}

func (t *sqlTx) oneLead(ctx context.Context, op, query string, args ...any) (*model.Lead, error) {
	l, err := scanLead(t.c.queryRow(ctx, query, args...))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: "+op)
	}
	return l, nil
}

// UpdateLead rewrites the lead's contact fields, normalized identity and
// archive flag. The tombstone pointer is left alone.
func (t *sqlTx) UpdateLead(ctx context.Context, l *model.Lead) error {
	l.UpdatedAt = now()
	n, err := t.c.exec(ctx,
		`UPDATE leads SET
			business_name = $3, contact_name = $4, email = $5, phone = $6, website = $7, address = $8,
			city = $9, state = $10, postal_code = $11, email_norm = $12, phone_norm = $13, domain_norm = $14,
			name_norm = $15, city_norm = $16, archived = $17, updated_at = $18
		WHERE tenant_id = $1 AND id = $2`,
		l.TenantID, l.ID, l.BusinessName, l.ContactName, l.Email, l.Phone, l.Website, l.Address,
		l.City, l.State, l.PostalCode, l.Norm.Email, l.Norm.Phone, l.Norm.Domain,
		l.Norm.Name, l.Norm.City, l.Archived, l.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "store: update lead %s", l.ID)
	}
	return checkAffected(n, "lead", l.ID)
}

// FindLeadsByIdentity returns active leads sharing any of norm's email, phone
// or domain, oldest first.
func (t *sqlTx) FindLeadsByIdentity(ctx context.Context, tenantID string, norm model.Normalized) ([]model.Lead, error) {
	if blank(norm.Email) && blank(norm.Phone) && blank(norm.Domain) {
		return nil, nil
	}
	it, err := t.c.query(ctx,
		`SELECT `+leadColumns+` FROM leads
		WHERE tenant_id = $1`+activeLead+`
			AND (email_norm = $2 OR phone_norm = $3 OR domain_norm = $4)
		ORDER BY created_at, id`,
		tenantID, nonBlank(norm.Email), nonBlank(norm.Phone), nonBlank(norm.Domain),
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: find leads by identity")
	}
	leads, err := collect(it, scanLead)
	return leads, eris.Wrap(err, "store: scan leads")
}

// FindLeadsByCity returns active named leads in a normalized city, oldest first.
func (t *sqlTx) FindLeadsByCity(ctx context.Context, tenantID, cityNorm string) ([]model.Lead, error) {
	if cityNorm == "" {
		return nil, nil
	}
	it, err := t.c.query(ctx,
		`SELECT `+leadColumns+` FROM leads
		WHERE tenant_id = $1`+activeLead+` AND city_norm = $2 AND name_norm IS NOT NULL
		ORDER BY created_at, id`,
		tenantID, cityNorm,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: find leads by city")
	}
	leads, err := collect(it, scanLead)
	return leads, eris.Wrap(err, "store: scan leads")
}

func (t *sqlTx) ListLeads(ctx context.Context, tenantID string, includeTombstoned bool) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1`
	if !includeTombstoned {
		query += activeLead
	}
	it, err := t.c.query(ctx, query+` ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list leads")
	}
	leads, err := collect(it, scanLead)
	return leads, eris.Wrap(err, "store: scan leads")
}

// TombstoneLead points an active lead at the lead it was merged into.
func (t *sqlTx) TombstoneLead(ctx context.Context, tenantID, leadID, intoLeadID string) error {
	n, err := t.c.exec(ctx,
		`UPDATE leads SET merged_into_lead_id = $3, updated_at = $4
		WHERE tenant_id = $1 AND id = $2`+activeLead,
		tenantID, leadID, intoLeadID, now(),
	)
	if err != nil {
		return eris.Wrapf(err, "store: tombstone lead %s", leadID)
	}
	return checkAffected(n, "active lead", leadID)
}

// RepointTombstones moves tombstones that point at fromLeadID to toLeadID so
// chains never dangle on a merged-away lead.
func (t *sqlTx) RepointTombstones(ctx context.Context, tenantID, fromLeadID, toLeadID string) (int, error) {
	n, err := t.c.exec(ctx,
		`UPDATE leads SET merged_into_lead_id = $3, updated_at = $4
		WHERE tenant_id = $1 AND merged_into_lead_id = $2`,
		tenantID, fromLeadID, toLeadID, now(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "store: repoint tombstones of %s", fromLeadID)
	}
	return int(n), nil
}

func scanLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	if err := row.Scan(
		&l.ID, &l.TenantID, &l.BusinessName, &l.ContactName, &l.Email, &l.Phone, &l.Website, &l.Address,
		&l.City, &l.State, &l.PostalCode, &l.Norm.Email, &l.Norm.Phone, &l.Norm.Domain, &l.Norm.Name,
		&l.Norm.City, &l.MergedIntoLeadID, &l.Archived, &l.SourceRunID, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &l, nil
}

func blank(s *string) bool { return s == nil || *s == "" }

func nonBlank(s *string) any {
	if blank(s) {
		return nil
	}
	return *s
}
