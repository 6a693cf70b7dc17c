// Package sym defines canonical glyphs for the provenance engine's CLI and logs.
// These symbols are stable across CLI help, log fields and documentation.
package sym

// Primary operators: each has a top-level command.
const (
	AM       = "≡" // am: configuration and system settings
	Run      = "⌬" // run: who or what produced a batch of claims
	Claim    = "+" // claim: a candidate answer for a subject
	Decide   = "⊨" // decision: audited choice of the current answer
	Evidence = "∴" // evidence: support attached to a claim, decision or edition
	Biblio   = "▤" // biblio: identifiers, publications, editions
	Dedup    = "≈" // dedup: staged candidates awaiting manual merge
	Ingest   = "⨳" // ingest: batch import of external sources
)

// System infrastructure symbols.
const (
	DB        = "⊔" // database/storage layer
	Consensus = "✦" // consensus recomputation
)

type entry struct {
	glyph       string
	command     string
	description string
}

var registry = []entry{
	{AM, "am", "System settings and state"},
	{Run, "run", "Annotation runs"},
	{Claim, "claim", "Candidate answers"},
	{Decide, "decision", "Audited consensus overrides"},
	{Evidence, "evidence", "Supporting citations"},
	{Biblio, "biblio", "Bibliographic identity and editions"},
	{Dedup, "dedup", "Manual deduplication review"},
	{Ingest, "ingest", "Batch import"},
	{Consensus, "consensus", "Consensus selection"},
	{DB, "db", "Database/storage layer"},
}

var commandToGlyph map[string]string

func init() {
	commandToGlyph = make(map[string]string, len(registry))
	for _, e := range registry {
		commandToGlyph[e.command] = e.glyph
	}
}

// ForCommand returns the glyph for a CLI command name, or "" if none.
func ForCommand(command string) string {
	return commandToGlyph[command]
}

// Describe returns the one-line description registered for a glyph.
func Describe(glyph string) string {
	for _, e := range registry {
		if e.glyph == glyph {
			return e.description
		}
	}
	return ""
}
