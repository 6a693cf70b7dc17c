package dedup

import (
	"sort"
	"strconv"

	"github.com/teranos/provenance/am"
)

// Tier confidences
const (
	ConfidenceDOI             = 1.0
	ConfidenceBibKey          = 0.95
	ConfidenceTitleYear       = 0.8
	ConfidenceShortVolume     = 0.7
	ConfidenceFuzzyTitle      = 0.5
	ConfidenceORCID           = 1.0
	ConfidenceSurnameInitials = 0.85
	ConfidenceFuzzyName       = 0.7
	ConfidenceNameReview      = 0.5
)

// Outcome is what the caller should do with a candidate
type Outcome string

const (
	OutcomeCreate Outcome = "created"
	OutcomeMerge  Outcome = "merged"
	OutcomeStage  Outcome = "staged"
)

// Match is the result of a cascade. A zero Match means nothing matched.
type Match struct {
	ID         string   `json:"id,omitempty"`
	Confidence float64  `json:"confidence"`
	Tier       int      `json:"tier,omitempty"`
	Basis      KeyType  `json:"basis,omitempty"`
	Candidates []string `json:"candidates,omitempty"` // every entry that matched at this tier
	Ambiguous  bool     `json:"ambiguous,omitempty"`
	Similarity float64  `json:"similarity,omitempty"`
}

// Found reports whether any tier matched
func (m Match) Found() bool {
	return m.ID != ""
}

// Reason is a short human-readable explanation
func (m Match) Reason() string {
	switch {
	case !m.Found():
		return "no match"
	case m.Ambiguous:
		return strconv.Itoa(len(m.Candidates)) + " entries tie on " + string(m.Basis)
	case m.Similarity > 0:
		return string(m.Basis) + " similarity " + strconv.FormatFloat(m.Similarity, 'f', 2, 64)
	default:
		return "exact " + string(m.Basis)
	}
}

// Matcher runs the publication and scholar cascades
type Matcher struct {
	AutoMergeThreshold   float64
	FuzzyTitleSimilarity float64
	FuzzyNameSimilarity  float64
	ReviewNameSimilarity float64
}

// NewMatcher returns a matcher with the default thresholds
func NewMatcher() *Matcher {
	return &Matcher{
		AutoMergeThreshold:   am.DefaultAutoMergeThreshold,
		FuzzyTitleSimilarity: am.DefaultFuzzyTitleSimilarity,
		FuzzyNameSimilarity:  am.DefaultFuzzyNameSimilarity,
		ReviewNameSimilarity: am.DefaultReviewNameSimilarity,
	}
}

// MatcherFromConfig reads thresholds from the biblio config section
func MatcherFromConfig(cfg am.BiblioConfig) *Matcher {
	m := NewMatcher()
	if cfg.AutoMergeThreshold > 0 {
		m.AutoMergeThreshold = cfg.AutoMergeThreshold
	}
	if cfg.FuzzyTitleSimilarity > 0 {
		m.FuzzyTitleSimilarity = cfg.FuzzyTitleSimilarity
	}
	if cfg.FuzzyNameSimilarity > 0 {
		m.FuzzyNameSimilarity = cfg.FuzzyNameSimilarity
	}
	if cfg.ReviewNameSimilarity > 0 {
		m.ReviewNameSimilarity = cfg.ReviewNameSimilarity
	}
	return m
}

// Route maps a match to an action: confident unambiguous matches merge, any
// other positive match is staged for review.
func (m *Matcher) Route(match Match) Outcome {
	switch {
	case !match.Found():
		return OutcomeCreate
	case match.Ambiguous || match.Confidence < m.AutoMergeThreshold:
		return OutcomeStage
	default:
		return OutcomeMerge
	}
}

type exactTier struct {
	tier       int
	key        KeyType
	confidence float64
	// several distinct entries matching is ambiguous rather than "earliest wins"
	ambiguous bool
}

var publicationTiers = []exactTier{
	{1, KeyDOI, ConfidenceDOI, false},
	{2, KeyBibKey, ConfidenceBibKey, false},
	{3, KeyTitleYear, ConfidenceTitleYear, false},
	{4, KeyShortVolume, ConfidenceShortVolume, true},
}

var scholarTiers = []exactTier{
	{1, KeyORCID, ConfidenceORCID, false},
	{2, KeySurnameInitials, ConfidenceSurnameInitials, true},
}

// MatchPublication runs the publication cascade. The result does not depend
// on pool order: ties go to the earliest-created entry, then the smallest id.
func (m *Matcher) MatchPublication(candidate []Key, pool []Entry) Match {
	pool = eligible(candidate, ordered(pool), KeyDOI)
	if match, ok := matchExact(candidate, pool, publicationTiers); ok {
		return match
	}
	return m.matchFuzzyTitle(candidate, pool)
}

// MatchScholar runs the scholar cascade
func (m *Matcher) MatchScholar(candidate []Key, pool []Entry) Match {
	pool = eligible(candidate, ordered(pool), KeyORCID)
	if match, ok := matchExact(candidate, pool, scholarTiers); ok {
		return match
	}
	return m.matchFuzzyName(candidate, pool)
}

func matchExact(candidate []Key, pool []Entry, tiers []exactTier) (Match, bool) {
	for _, t := range tiers {
		want := valuesOf(candidate, t.key)
		if len(want) == 0 {
			continue
		}
		var hits []string
		for _, e := range pool {
			if intersects(want, valuesOf(e.Keys, t.key)) {
				hits = append(hits, e.ID)
			}
		}
		if len(hits) == 0 {
			continue
		}
		return Match{
			ID:         hits[0],
			Confidence: t.confidence,
			Tier:       t.tier,
			Basis:      t.key,
			Candidates: hits,
			Ambiguous:  t.ambiguous && len(hits) > 1,
		}, true
	}
	return Match{}, false
}

func (m *Matcher) matchFuzzyTitle(candidate []Key, pool []Entry) Match {
	best := Match{}
	var hits []string
	for _, want := range valuesOf(candidate, KeyTitleYear) {
		wantTitle, wantYear := splitKey(want)
		for _, e := range pool {
			for _, have := range valuesOf(e.Keys, KeyTitleYear) {
				title, year := splitKey(have)
				if year != wantYear {
					continue
				}
				sim := Similarity(wantTitle, title)
				if sim < m.FuzzyTitleSimilarity {
					continue
				}
				hits = appendUnique(hits, e.ID)
				if sim > best.Similarity {
					best = Match{ID: e.ID, Confidence: ConfidenceFuzzyTitle, Tier: 5, Basis: KeyTitleYear, Similarity: sim}
				}
			}
		}
	}
	if best.Found() {
		best.Candidates = hits
	}
	return best
}

func (m *Matcher) matchFuzzyName(candidate []Key, pool []Entry) Match {
	best := Match{}
	var hits []string
	for _, want := range valuesOf(candidate, KeyFullName) {
		for _, e := range pool {
			for _, have := range valuesOf(e.Keys, KeyFullName) {
				sim := Similarity(want, have)
				if sim < m.ReviewNameSimilarity {
					continue
				}
				hits = appendUnique(hits, e.ID)
				if sim > best.Similarity {
					conf := ConfidenceNameReview
					if sim >= m.FuzzyNameSimilarity {
						conf = ConfidenceFuzzyName
					}
					best = Match{ID: e.ID, Confidence: conf, Tier: 3, Basis: KeyFullName, Similarity: sim}
				}
			}
		}
	}
	if best.Found() {
		best.Candidates = hits
	}
	return best
}

// ordered sorts a copy of the pool by creation time, then id
func ordered(pool []Entry) []Entry {
	out := append([]Entry(nil), pool...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// eligible drops entries whose strong identifier contradicts the candidate's:
// two different DOIs (or ORCIDs) never denote the same entity, whatever the
// weaker tiers say.
func eligible(candidate []Key, pool []Entry, strong KeyType) []Entry {
	want := valuesOf(candidate, strong)
	if len(want) == 0 {
		return pool
	}
	out := pool[:0:0]
	for _, e := range pool {
		have := valuesOf(e.Keys, strong)
		if len(have) > 0 && !intersects(want, have) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func valuesOf(keys []Key, t KeyType) []string {
	var out []string
	for _, k := range keys {
		if k.Type == t {
			out = append(out, k.Value)
		}
	}
	return out
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
