// Package dedupe decides whether two normalized identities describe the same
// business. Hard duplicates share an exact strong identifier; soft duplicates
// have similar names in the same city and need a human to confirm.
package dedupe

import (
	"math"

	"github.com/xrash/smetrics"

	"github.com/sells-group/lead-import/internal/model"
)

// Defaults used when a Config leaves a value unset.
const (
	DefaultSoftThreshold = 0.90
	DefaultNameWeight    = 0.8
	DefaultCityWeight    = 0.2
)

// Jaro-Winkler tuning: the prefix bonus applies above boostThreshold and
// looks at up to prefixSize runes.
const (
	boostThreshold = 0.7
	prefixSize     = 4
)

// Config tunes soft matching.
type Config struct {
	SoftThreshold float64 `yaml:"soft_threshold" mapstructure:"soft_threshold"`
	NameWeight    float64 `yaml:"name_weight" mapstructure:"name_weight"`
	CityWeight    float64 `yaml:"city_weight" mapstructure:"city_weight"`
}

// Matcher classifies candidates against existing leads.
type Matcher struct {
	threshold  float64
	nameWeight float64
	cityWeight float64
}

// NewMatcher builds a Matcher, filling zero or out-of-range settings with defaults.
func NewMatcher(cfg Config) *Matcher {
	m := &Matcher{
		threshold:  cfg.SoftThreshold,
		nameWeight: cfg.NameWeight,
		cityWeight: cfg.CityWeight,
	}
	if m.threshold <= 0 || m.threshold > 1 {
		m.threshold = DefaultSoftThreshold
	}
	if m.nameWeight <= 0 || m.cityWeight < 0 || m.nameWeight+m.cityWeight > 1 {
		m.nameWeight = DefaultNameWeight
		m.cityWeight = DefaultCityWeight
	}
	return m
}

var defaultMatcher = NewMatcher(Config{})

// Threshold returns the minimum name similarity for a soft match.
func (m *Matcher) Threshold() float64 { return m.threshold }

// IsHardDuplicate reports whether a and b share an email, phone or domain.
// Absent or empty identifiers never match.
func IsHardDuplicate(a, b model.Normalized) bool {
	return sameToken(a.Email, b.Email) ||
		sameToken(a.Phone, b.Phone) ||
		sameToken(a.Domain, b.Domain)
}

// IsSoftDuplicate applies the default matcher.
func IsSoftDuplicate(a, b model.Normalized) bool {
	return defaultMatcher.IsSoftDuplicate(a, b)
}

// SoftDuplicateScore applies the default matcher.
func SoftDuplicateScore(a, b model.Normalized) float64 {
	return defaultMatcher.SoftDuplicateScore(a, b)
}

// IsSoftDuplicate reports whether a and b have equal cities and names that are
// equal or at least Threshold similar. Both names and both cities must be present.
func (m *Matcher) IsSoftDuplicate(a, b model.Normalized) bool {
	if empty(a.Name) || empty(b.Name) || empty(a.City) || empty(b.City) {
		return false
	}
	if *a.City != *b.City {
		return false
	}
	return NameSimilarity(*a.Name, *b.Name) >= m.threshold
}

// SoftDuplicateScore ranks a soft candidate in [0,1]. It is 0 unless both
// names are present, and rounded to four decimal places.
func (m *Matcher) SoftDuplicateScore(a, b model.Normalized) float64 {
	if empty(a.Name) || empty(b.Name) {
		return 0
	}
	city := 0.0
	if !empty(a.City) && !empty(b.City) && *a.City == *b.City {
		city = 1
	}
	score := m.nameWeight*NameSimilarity(*a.Name, *b.Name) + m.cityWeight*city
	return round4(math.Min(1, math.Max(0, score)))
}

// NameSimilarity is the Jaro-Winkler similarity of two normalized names.
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return smetrics.JaroWinkler(a, b, boostThreshold, prefixSize)
}

func sameToken(a, b *string) bool {
	return !empty(a) && !empty(b) && *a == *b
}

func empty(s *string) bool {
	return s == nil || *s == ""
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
