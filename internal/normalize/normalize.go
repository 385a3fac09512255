// Package normalize turns raw contact values into canonical identity tokens.
// Every function is total: blank input yields "" (absent), never an error.
package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/lead-import/internal/model"
)

// entitySuffixes are trailing legal-entity tokens dropped from business names,
// compared after punctuation has been removed.
var entitySuffixes = map[string]bool{
	"llc":          true,
	"inc":          true,
	"incorporated": true,
	"co":           true,
	"company":      true,
	"corp":         true,
	"corporation":  true,
	"ltd":          true,
	"limited":      true,
	"lp":           true,
	"llp":          true,
	"pllc":         true,
	"pc":           true,
	"plc":          true,
	"gmbh":         true,
	"dba":          true,
}

// Email trims and lowercases an address. No format validation is done.
func Email(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Phone keeps only digits and collapses a leading US country code on
// 11-digit numbers.
func Phone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// Domain extracts a lowercase host from a URL, bare host or email address.
func Domain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return ""
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		return strings.TrimSpace(d[i+1:])
	}
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	return strings.TrimSuffix(d, ".")
}

// BusinessName lowercases, folds accents, strips punctuation and trailing
// legal-entity suffixes, and collapses whitespace. At least one token is kept.
func BusinessName(raw string) string {
	s := strings.ToLower(foldAccents(strings.TrimSpace(raw)))
	if s == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '\'' || r == '’':
			// Dropped so "L.L.C." and "Bob's" collapse to single tokens.
		default:
			b.WriteRune(' ')
		}
	}

	tokens := strings.Fields(b.String())
	for len(tokens) > 1 && entitySuffixes[tokens[len(tokens)-1]] {
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// City trims and lowercases a city name.
func City(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// LeadPayload builds the normalized identity bag for a row or lead payload.
// Source values are found by lead field name or a common header alias;
// missing values map to nil.
func LeadPayload(fields model.Fields) model.Normalized {
	src := lookupFields(fields)
	return model.Normalized{
		Email:  ptr(Email(src[model.FieldEmail])),
		Phone:  ptr(Phone(src[model.FieldPhone])),
		Domain: ptr(Domain(src[model.FieldWebsite])),
		Name:   ptr(BusinessName(src[model.FieldBusinessName])),
		City:   ptr(City(src[model.FieldCity])),
	}
}

// Lead recomputes the normalized identity of a lead from its contact fields.
func Lead(l *model.Lead) model.Normalized {
	return LeadPayload(l.Fields())
}

// lookupFields resolves the identity fields present in a bag. An exact lead
// field name wins over an alias; among aliases the first header in sorted
// order wins.
func lookupFields(fields model.Fields) map[string]string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string, 5)
	exact := make(map[string]bool, 5)
	for _, key := range keys {
		text := fields[key].Text()
		if text == "" {
			continue
		}
		field, ok := FieldForHeader(key)
		if !ok {
			continue
		}
		isExact := key == field
		if _, seen := out[field]; seen && (exact[field] || !isExact) {
			continue
		}
		out[field] = text
		exact[field] = isExact
	}
	return out
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
