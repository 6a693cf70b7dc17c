package biblio

import (
	"encoding/json"
	"time"

	"github.com/teranos/provenance/biblio/dedup"
)

// EditionType describes how a publication treats an artifact
type EditionType string

const (
	FullEdition     EditionType = "full_edition"
	HandCopy        EditionType = "hand_copy"
	PhotographOnly  EditionType = "photograph_only"
	CatalogEntry    EditionType = "catalog_entry"
	Collation       EditionType = "collation"
	TranslationOnly EditionType = "translation_only"
	Commentary      EditionType = "commentary"
)

// Specificity ranks the non-full edition types, most specific first
var Specificity = []EditionType{Collation, HandCopy, TranslationOnly, Commentary, PhotographOnly, CatalogEntry}

// Valid reports whether t is a known edition type
func (t EditionType) Valid() bool {
	if t == FullEdition {
		return true
	}
	for _, known := range Specificity {
		if t == known {
			return true
		}
	}
	return false
}

func (t EditionType) specificity() int {
	if t == FullEdition {
		return -1
	}
	for i, known := range Specificity {
		if t == known {
			return i
		}
	}
	return len(Specificity)
}

// Identifier maps an external catalog key to a canonical artifact
type Identifier struct {
	Kind          string    `json:"kind"`
	NormalizedKey string    `json:"normalized_key"`
	Raw           string    `json:"raw"`
	ArtifactID    string    `json:"artifact_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Publication is a deduplicated bibliographic record. Its columns hold the
// first record seen; later sources are bibliographic claims on it.
type Publication struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	ShortTitle   string      `json:"short_title,omitempty"`
	Authors      string      `json:"authors,omitempty"`
	Year         int         `json:"year,omitempty"`
	Volume       string      `json:"volume,omitempty"`
	DOI          string      `json:"doi,omitempty"`
	BibKey       string      `json:"bib_key,omitempty"`
	Source       string      `json:"source,omitempty"`
	SourceKey    string      `json:"source_key,omitempty"`
	SupersedesID string      `json:"supersedes_id,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	Keys         []dedup.Key `json:"keys,omitempty"`
}

// Edition links one artifact to one publication
type Edition struct {
	ID               string          `json:"id"`
	ArtifactID       string          `json:"artifact_id"`
	PublicationID    string          `json:"publication_id"`
	EditionType      EditionType     `json:"edition_type"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	ClaimID          string          `json:"claim_id"`
	SupersedesID     string          `json:"supersedes_id,omitempty"`
	IsCurrentEdition bool            `json:"is_current_edition"`
	CreatedAt        time.Time       `json:"created_at"`

	// PublicationYear is joined from the publication
	PublicationYear int `json:"publication_year,omitempty"`
}

// Scholar is a deduplicated person
type Scholar struct {
	ID         string    `json:"id"`
	ORCID      string    `json:"orcid,omitempty"`
	Surname    string    `json:"surname"`
	GivenNames string    `json:"given_names,omitempty"`
	FullName   string    `json:"full_name"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entity names what a registration or candidate is about
type Entity string

const (
	EntityPublication Entity = "publication"
	EntityScholar     Entity = "scholar"
)

// Registration reports what RegisterPublication or RegisterScholar did
type Registration struct {
	Entity      Entity        `json:"entity"`
	ID          string        `json:"id,omitempty"` // empty when staged
	Outcome     dedup.Outcome `json:"outcome"`
	Confidence  float64       `json:"confidence"`
	Tier        int           `json:"tier,omitempty"`
	Basis       dedup.KeyType `json:"basis,omitempty"`
	CandidateID string        `json:"candidate_id,omitempty"`
	ClaimID     string        `json:"claim_id,omitempty"`
}

// CandidateStatus tracks manual review of a staged record
type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "pending"
	CandidateMerged   CandidateStatus = "merged"
	CandidateDistinct CandidateStatus = "distinct"
)

// DedupCandidate is a staged record awaiting manual merge or split
type DedupCandidate struct {
	ID         string          `json:"id"`
	Entity     Entity          `json:"entity"`
	Payload    json.RawMessage `json:"payload"`
	RunID      string          `json:"run_id,omitempty"`
	MatchIDs   []string        `json:"match_ids"`
	Confidence float64         `json:"confidence"`
	Tier       int             `json:"tier"`
	Basis      string          `json:"basis"`
	Reason     string          `json:"reason"`
	Status     CandidateStatus `json:"status"`
	ResolvedBy string          `json:"resolved_by,omitempty"`
	ResolvedID string          `json:"resolved_id,omitempty"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PublicationHit is one FindPublication result
type PublicationHit struct {
	Publication Publication   `json:"publication"`
	Confidence  float64       `json:"confidence"`
	Basis       dedup.KeyType `json:"basis"`
}
