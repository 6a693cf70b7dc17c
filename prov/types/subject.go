package types

import (
	"strings"

	"github.com/teranos/provenance/errors"
)

// Kind is the category of a contested answer. Every Claim and Decision is scoped
// to exactly one Subject + Kind.
type Kind string

const (
	KindReading       Kind = "reading"
	KindLemmatization Kind = "lemmatization"
	KindTranslation   Kind = "translation"
	KindEdition       Kind = "edition"
	KindBibliographic Kind = "bibliographic"
)

// Kinds lists every valid kind
var Kinds = []Kind{KindReading, KindLemmatization, KindTranslation, KindEdition, KindBibliographic}

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind converts a string to a Kind
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", errors.NewValidationError("unknown claim kind %q", s)
	}
	return k, nil
}

// subjectSeparator joins artifact and position in a subject key
const subjectSeparator = "@"

// publicationPrefix marks subjects that are publications rather than artifacts
const publicationPrefix = "pub:"

// Subject identifies the thing being contested: a token position on an artifact,
// or the artifact itself (edition identity), or a publication (bibliographic metadata).
type Subject struct {
	Artifact string `json:"artifact" validate:"required,excludes=@"`
	Position string `json:"position,omitempty"`
}

// TokenSubject is a position on an artifact, e.g. ("P010123", "o.1.2").
func TokenSubject(artifact, position string) Subject {
	return Subject{Artifact: artifact, Position: position}
}

// ArtifactSubject is a whole artifact; edition identity is contested at this level.
func ArtifactSubject(artifact string) Subject {
	return Subject{Artifact: artifact}
}

// PublicationSubject carries bibliographic claims about a publication.
func PublicationSubject(publicationID string) Subject {
	return Subject{Artifact: publicationPrefix + publicationID}
}

// Key is the canonical storage form: "artifact@position" or "artifact".
func (s Subject) Key() string {
	if s.Position == "" {
		return s.Artifact
	}
	return s.Artifact + subjectSeparator + s.Position
}

func (s Subject) String() string {
	return s.Key()
}

// IsZero reports whether the subject is unset
func (s Subject) IsZero() bool {
	return s.Artifact == ""
}

// ParseSubject is the inverse of Key. The artifact part may not contain "@".
func ParseSubject(key string) (Subject, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Subject{}, errors.NewValidationError("subject is empty")
	}
	artifact, position, _ := strings.Cut(key, subjectSeparator)
	if artifact == "" {
		return Subject{}, errors.NewValidationError("subject %q has no artifact", key)
	}
	return Subject{Artifact: artifact, Position: position}, nil
}
