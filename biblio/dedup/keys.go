// Package dedup decides whether two externally sourced bibliographic or
// scholar records denote the same real-world entity.
//
// Records are reduced to normalized match keys. A cascade of tiers compares
// the candidate's keys against each pool entry's keys in strict priority order
// and stops at the first tier that yields a match:
//
//	publications: doi 1.0 > bibkey 0.95 > title+year 0.8 > short title+volume 0.7 > fuzzy title 0.5
//	scholars:     orcid 1.0 > surname+initials 0.85 > fuzzy full name 0.7 (or 0.5 for review)
//
// The package is pure: the caller gathers the pool and persists the outcome.
package dedup

import "time"

// KeyType names a normalized match key
type KeyType string

const (
	KeyDOI         KeyType = "doi"
	KeyBibKey      KeyType = "bibkey"
	KeyTitleYear   KeyType = "title_year"
	KeyShortVolume KeyType = "short_volume"

	// Stored alongside the match keys for search and provenance; the cascade ignores them
	KeyTitle  KeyType = "title"
	KeySource KeyType = "source"

	KeyORCID           KeyType = "orcid"
	KeySurnameInitials KeyType = "surname_initials"
	KeyFullName        KeyType = "full_name"
)

// Key is one normalized match key
type Key struct {
	Type  KeyType `json:"type"`
	Value string  `json:"value"`
}

// Entry is an existing entity in the pool with every key it has accumulated.
// Merges add keys to an entry; they never replace its id.
type Entry struct {
	ID        string
	CreatedAt time.Time
	Keys      []Key
}

// PublicationRecord is incoming bibliographic metadata
type PublicationRecord struct {
	Title      string `json:"title" yaml:"title"`
	ShortTitle string `json:"short_title,omitempty" yaml:"short_title"`
	Authors    string `json:"authors,omitempty" yaml:"authors"`
	Year       int    `json:"year,omitempty" yaml:"year"`
	Volume     string `json:"volume,omitempty" yaml:"volume"`
	DOI        string `json:"doi,omitempty" yaml:"doi"`
	BibKey     string `json:"bib_key,omitempty" yaml:"bib_key"`
	Source     string `json:"source,omitempty" yaml:"source"`
	SourceKey  string `json:"source_key,omitempty" yaml:"source_key"`
}

// Keys derives the publication's match keys. Keys whose inputs are blank are omitted.
func (r PublicationRecord) Keys() []Key {
	var keys []Key
	if doi := NormalizeDOI(r.DOI); doi != "" {
		keys = append(keys, Key{KeyDOI, doi})
	}
	if bk := NormalizeBibKey(r.BibKey); bk != "" {
		keys = append(keys, Key{KeyBibKey, bk})
	}
	if title, year := NormalizeTitle(r.Title), yearString(r.Year); title != "" && year != "" {
		keys = append(keys, Key{KeyTitleYear, joinKey(title, year)})
	}
	if short, vol := NormalizeTitle(r.ShortTitle), NormalizeText(r.Volume); short != "" && vol != "" {
		keys = append(keys, Key{KeyShortVolume, joinKey(short, vol)})
	}
	return keys
}

// ScholarRecord is an incoming person record
type ScholarRecord struct {
	ORCID      string `json:"orcid,omitempty" yaml:"orcid"`
	Surname    string `json:"surname" yaml:"surname"`
	GivenNames string `json:"given_names,omitempty" yaml:"given_names"`
	FullName   string `json:"full_name,omitempty" yaml:"full_name"`
	Source     string `json:"source,omitempty" yaml:"source"`
}

// DisplayName is FullName, or "GivenNames Surname" when unset
func (r ScholarRecord) DisplayName() string {
	if r.FullName != "" {
		return r.FullName
	}
	if r.GivenNames == "" {
		return r.Surname
	}
	return r.GivenNames + " " + r.Surname
}

// Keys derives the scholar's match keys
func (r ScholarRecord) Keys() []Key {
	var keys []Key
	if orcid := NormalizeORCID(r.ORCID); orcid != "" {
		keys = append(keys, Key{KeyORCID, orcid})
	}
	surname := NormalizeText(r.Surname)
	if initials := Initials(r.GivenNames); surname != "" && initials != "" {
		keys = append(keys, Key{KeySurnameInitials, joinKey(surname, initials)})
	}
	if full := NormalizeText(r.DisplayName()); full != "" {
		keys = append(keys, Key{KeyFullName, full})
	}
	return keys
}
