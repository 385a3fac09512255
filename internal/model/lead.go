// Package model defines the import run, import row, lead and merge log types.
package model

import (
	"time"
)

// Lead field names accepted as mapping targets and merge choices.
const (
	FieldBusinessName = "business_name"
	FieldContactName  = "contact_name"
	FieldEmail        = "email"
	FieldPhone        = "phone"
	FieldWebsite      = "website"
	FieldAddress      = "address"
	FieldCity         = "city"
	FieldState        = "state"
	FieldPostalCode   = "postal_code"
)

// LeadFields lists every mappable lead field in display order.
var LeadFields = []string{
	FieldBusinessName,
	FieldContactName,
	FieldEmail,
	FieldPhone,
	FieldWebsite,
	FieldAddress,
	FieldCity,
	FieldState,
	FieldPostalCode,
}

// RequiredLeadFields must be present and non-blank for a row to become a lead.
var RequiredLeadFields = []string{FieldBusinessName}

// IsLeadField reports whether name is a known lead field.
func IsLeadField(name string) bool {
	for _, f := range LeadFields {
		if f == name {
			return true
		}
	}
	return false
}

// Normalized holds the canonical identity tokens of a row or lead.
// A nil pointer means the source value was absent.
type Normalized struct {
	Email  *string `json:"emailNorm"`
	Phone  *string `json:"phoneNorm"`
	Domain *string `json:"domainNorm"`
	Name   *string `json:"nameNorm"`
	City   *string `json:"cityNorm"`
}

// Lead is a tenant-owned contact record.
type Lead struct {
	ID           string `json:"id" db:"id"`
	TenantID     string `json:"tenant_id" db:"tenant_id"`
	BusinessName string `json:"business_name" db:"business_name"`
	ContactName  string `json:"contact_name,omitempty" db:"contact_name"`
	Email        string `json:"email,omitempty" db:"email"`
	Phone        string `json:"phone,omitempty" db:"phone"`
	Website      string `json:"website,omitempty" db:"website"`
	Address      string `json:"address,omitempty" db:"address"`
	City         string `json:"city,omitempty" db:"city"`
	State        string `json:"state,omitempty" db:"state"`
	PostalCode   string `json:"postal_code,omitempty" db:"postal_code"`

	Norm Normalized `json:"normalized"`

	// MergedIntoLeadID is the tombstone pointer; non-nil leads are hidden from
	// listings and dedupe scans but stay readable by id.
	MergedIntoLeadID *string `json:"merged_into_lead_id,omitempty" db:"merged_into_lead_id"`
	Archived         bool    `json:"archived" db:"archived"`
	SourceRunID      *string `json:"source_run_id,omitempty" db:"source_run_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Tombstoned reports whether the lead has been merged away.
func (l *Lead) Tombstoned() bool { return l.MergedIntoLeadID != nil }

// Field returns the value of a lead field by name.
func (l *Lead) Field(name string) string {
	switch name {
	case FieldBusinessName:
		return l.BusinessName
	case FieldContactName:
		return l.ContactName
	case FieldEmail:
		return l.Email
	case FieldPhone:
		return l.Phone
	case FieldWebsite:
		return l.Website
	case FieldAddress:
		return l.Address
	case FieldCity:
		return l.City
	case FieldState:
		return l.State
	case FieldPostalCode:
		return l.PostalCode
	default:
		return ""
	}
}

// SetField assigns a lead field by name. It returns false for unknown names.
func (l *Lead) SetField(name, value string) bool {
	switch name {
	case FieldBusinessName:
		l.BusinessName = value
	case FieldContactName:
		l.ContactName = value
	case FieldEmail:
		l.Email = value
	case FieldPhone:
		l.Phone = value
	case FieldWebsite:
		l.Website = value
	case FieldAddress:
		l.Address = value
	case FieldCity:
		l.City = value
	case FieldState:
		l.State = value
	case FieldPostalCode:
		l.PostalCode = value
	default:
		return false
	}
	return true
}

// Fields returns the lead's contact fields as a value bag keyed by field name.
func (l *Lead) Fields() Fields {
	f := make(Fields, len(LeadFields))
	for _, name := range LeadFields {
		f[name] = Text(l.Field(name))
	}
	return f
}

// LeadActivity is a note in a lead's history.
type LeadActivity struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	LeadID    string    `json:"lead_id" db:"lead_id"`
	Body      string    `json:"body" db:"body"`
	ActorID   string    `json:"actor_id,omitempty" db:"actor_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LeadTask is scheduled work attached to a lead.
type LeadTask struct {
	ID        string     `json:"id" db:"id"`
	TenantID  string     `json:"tenant_id" db:"tenant_id"`
	LeadID    string     `json:"lead_id" db:"lead_id"`
	Title     string     `json:"title" db:"title"`
	DueAt     *time.Time `json:"due_at,omitempty" db:"due_at"`
	Done      bool       `json:"done" db:"done"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// FieldChoice selects which side of a merge supplies a contested field.
type FieldChoice string

// Merge field choices.
const (
	ChoiceExisting FieldChoice = "existing"
	ChoiceIncoming FieldChoice = "incoming"
)

// Valid reports whether c is a known choice.
func (c FieldChoice) Valid() bool {
	return c == ChoiceExisting || c == ChoiceIncoming
}

// MergeLog is the append-only audit record of one lead merge.
type MergeLog struct {
	ID            string                 `json:"id" db:"id"`
	TenantID      string                 `json:"tenant_id" db:"tenant_id"`
	PrimaryLeadID string                 `json:"primary_lead_id" db:"primary_lead_id"`
	MergedLeadID  string                 `json:"merged_lead_id" db:"merged_lead_id"`
	ChosenFields  map[string]FieldChoice `json:"chosen_fields" db:"chosen_fields"`
	Reason        *string                `json:"reason,omitempty" db:"reason"`
	ActorID       string                 `json:"actor_id" db:"actor_id"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
}
