package dedupe

import (
	"github.com/sells-group/lead-import/internal/model"
)

// MatchKind is the outcome of matching one candidate.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchHard
	MatchSoft
)

func (k MatchKind) String() string {
	switch k {
	case MatchHard:
		return "hard"
	case MatchSoft:
		return "soft"
	default:
		return "none"
	}
}

// Candidate is an existing lead's identity as seen by the matcher.
type Candidate struct {
	LeadID string
	Norm   model.Normalized
}

// Match is the classification of one incoming identity.
// LeadID and Score are zero for MatchNone; Score is only set for MatchSoft.
type Match struct {
	Kind   MatchKind
	LeadID string
	Score  float64
}

// Match classifies in against leads. Hard duplicates are checked first across
// every lead and the first hit in order wins. Otherwise the soft duplicate with
// the highest score wins, ties going to the earlier lead.
func (m *Matcher) Match(in model.Normalized, leads []Candidate) Match {
	for _, c := range leads {
		if IsHardDuplicate(in, c.Norm) {
			return Match{Kind: MatchHard, LeadID: c.LeadID}
		}
	}

	best := Match{Kind: MatchNone}
	for _, c := range leads {
		if !m.IsSoftDuplicate(in, c.Norm) {
			continue
		}
		score := m.SoftDuplicateScore(in, c.Norm)
		if best.Kind == MatchNone || score > best.Score {
			best = Match{Kind: MatchSoft, LeadID: c.LeadID, Score: score}
		}
	}
	return best
}
