package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/teranos/provenance/biblio"
	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
)

// Stage is one step of an import, run in Stages order
type Stage string

const (
	StageIdentifiers  Stage = "identifiers"
	StagePublications Stage = "publications"
	StageClaims       Stage = "claims"
	StageEditions     Stage = "editions"
	StageEvidence     Stage = "evidence"
	StageConsensus    Stage = "consensus"
)

// Stages in execution order. Consensus runs once after every source.
var Stages = []Stage{StageIdentifiers, StagePublications, StageClaims, StageEditions, StageEvidence, StageConsensus}

// ParseStage accepts a stage name
func ParseStage(s string) (Stage, error) {
	for _, st := range Stages {
		if string(st) == strings.ToLower(strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", errors.NewValidationError("unknown stage %q", s)
}

func (s Stage) index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// IdentifierRecord maps a raw catalog key to an artifact
type IdentifierRecord struct {
	Raw        string `json:"raw"`
	Kind       string `json:"kind"`
	ArtifactID string `json:"artifact_id"`
}

// ClaimRecord is one claim row; subject uses the artifact@position key
type ClaimRecord struct {
	Subject    string  `json:"subject"`
	Kind       string  `json:"kind"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Input converts the row into a claim for runID
func (c ClaimRecord) Input(runID string) (types.ClaimInput, error) {
	subject, err := types.ParseSubject(c.Subject)
	if err != nil {
		return types.ClaimInput{}, err
	}
	kind, err := types.ParseKind(c.Kind)
	if err != nil {
		return types.ClaimInput{}, err
	}
	in := types.ClaimInput{Subject: subject, Kind: kind, Value: c.Value, Confidence: c.Confidence, RunID: runID}
	return in, types.Validate(in)
}

// EditionRecord links an artifact to a publication. The publication is named
// by id or by the (source, source_key) it was imported with; source defaults
// to the importing source's name.
type EditionRecord struct {
	ArtifactID    string             `json:"artifact_id"`
	PublicationID string             `json:"publication_id,omitempty"`
	Source        string             `json:"source,omitempty"`
	SourceKey     string             `json:"source_key,omitempty"`
	EditionType   biblio.EditionType `json:"edition_type"`
	Metadata      json.RawMessage    `json:"metadata,omitempty"`
}

func (e EditionRecord) check() error {
	if e.ArtifactID == "" {
		return errors.NewValidationError("edition row has no artifact_id")
	}
	if e.PublicationID == "" && e.SourceKey == "" {
		return errors.NewValidationError("edition row names no publication")
	}
	if !e.EditionType.Valid() {
		return errors.NewValidationError("unknown edition type %q", e.EditionType)
	}
	return nil
}

// EvidenceRecord supports one claim of this source's run, named by subject,
// kind and value, or an explicit claim, decision or edition id.
type EvidenceRecord struct {
	Subject      string `json:"subject,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Value        string `json:"value,omitempty"`
	ClaimID      string `json:"claim_id,omitempty"`
	DecisionID   string `json:"decision_id,omitempty"`
	EditionID    string `json:"edition_id,omitempty"`
	EvidenceType string `json:"evidence_type"`
	EvidenceRef  string `json:"evidence_ref"`
	AddedBy      string `json:"added_by"`
	Note         string `json:"note,omitempty"`
}

func (e EvidenceRecord) explicitTarget() types.EvidenceTarget {
	return types.EvidenceTarget{ClaimID: e.ClaimID, DecisionID: e.DecisionID, EditionID: e.EditionID}
}

// decodeRow strictly decodes one JSONL row; malformed rows are validation
// failures of that row only.
func decodeRow(line json.RawMessage, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewValidationError("malformed row: %v", err)
	}
	return nil
}

const maxLineBytes = 4 << 20

// eachBatch streams a JSONL file in batches of size rows, starting after
// skip rows. Blank lines are not rows. offset is the row index of the first
// row in lines.
func eachBatch(path string, skip, size int, fn func(offset int, lines []json.RawMessage) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		row    int
		offset = skip
		batch  []json.RawMessage
	)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		row++
		if row <= skip {
			continue
		}
		batch = append(batch, append(json.RawMessage(nil), line...))
		if len(batch) == size {
			if err := fn(offset, batch); err != nil {
				return err
			}
			offset += len(batch)
			batch = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}
	if len(batch) > 0 {
		return fn(offset, batch)
	}
	return nil
}
