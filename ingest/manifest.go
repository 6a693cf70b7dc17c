// Package ingest imports catalog exports into the provenance engine.
//
// A manifest lists sources. Each source is one annotation run and names
// JSONL files for the staged import: identifiers, publications, claims,
// editions and evidence, followed by one consensus pass over everything.
// Every batch commits its rows together with a checkpoint, so an
// interrupted import resumes where it stopped and reuses the same run.
package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/provenance/errors"
	"github.com/teranos/provenance/prov/types"
)

// Manifest describes one import
type Manifest struct {
	Sources []Source `toml:"source" yaml:"sources"`
}

// Source is one catalog export, imported as one annotation run
type Source struct {
	Name string  `toml:"name" yaml:"name"`
	Run  RunMeta `toml:"run" yaml:"run"`

	Identifiers  string `toml:"identifiers" yaml:"identifiers"`
	Publications string `toml:"publications" yaml:"publications"`
	Claims       string `toml:"claims" yaml:"claims"`
	Editions     string `toml:"editions" yaml:"editions"`
	Evidence     string `toml:"evidence" yaml:"evidence"`
}

// RunMeta is the annotation run a source's rows are attributed to
type RunMeta struct {
	SourceType    string         `toml:"source_type" yaml:"source_type"`
	SourceName    string         `toml:"source_name" yaml:"source_name"`
	Method        string         `toml:"method" yaml:"method"`
	ScholarID     string         `toml:"scholar_id" yaml:"scholar_id"`
	PublicationID string         `toml:"publication_id" yaml:"publication_id"`
	Config        map[string]any `toml:"config" yaml:"config"`
}

// Spec converts the manifest entry into a run spec
func (m RunMeta) Spec() types.RunSpec {
	return types.RunSpec{
		SourceType:    types.SourceType(m.SourceType),
		SourceName:    m.SourceName,
		Method:        m.Method,
		ScholarID:     m.ScholarID,
		PublicationID: m.PublicationID,
		Config:        m.Config,
	}
}

// File returns the path for stage, resolved against the manifest's directory
func (s Source) File(stage Stage) string {
	switch stage {
	case StageIdentifiers:
		return s.Identifiers
	case StagePublications:
		return s.Publications
	case StageClaims:
		return s.Claims
	case StageEditions:
		return s.Editions
	case StageEvidence:
		return s.Evidence
	}
	return ""
}

// LoadManifest reads a TOML or YAML manifest. Relative file paths are
// resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, errors.Wrapf(err, "failed to parse TOML manifest %s", path)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrapf(err, "failed to parse YAML manifest %s", path)
		}
	default:
		return nil, errors.NewValidationError("manifest %s: unsupported extension (use .toml, .yaml or .yml)", path)
	}

	dir := filepath.Dir(path)
	for i := range m.Sources {
		src := &m.Sources[i]
		for _, p := range []*string{&src.Identifiers, &src.Publications, &src.Claims, &src.Editions, &src.Evidence} {
			if *p != "" && !filepath.IsAbs(*p) {
				*p = filepath.Join(dir, *p)
			}
		}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks source names and run metadata
func (m *Manifest) Validate() error {
	if len(m.Sources) == 0 {
		return errors.NewValidationError("manifest lists no sources")
	}
	seen := make(map[string]bool)
	for i, src := range m.Sources {
		if src.Name == "" {
			return errors.NewValidationError("source %d has no name", i)
		}
		if seen[src.Name] {
			return errors.NewValidationError("source %q is listed twice", src.Name)
		}
		seen[src.Name] = true
		if err := types.Validate(src.Run.Spec()); err != nil {
			return errors.Wrapf(err, "source %q run", src.Name)
		}
	}
	return nil
}
