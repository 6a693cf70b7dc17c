package sym

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGlyphsAreUnique(t *testing.T) {
	seen := make(map[string]string)
	for _, e := range registry {
		if prev, ok := seen[e.glyph]; ok {
			t.Fatalf("glyph %q used by both %s and %s", e.glyph, prev, e.command)
		}
		seen[e.glyph] = e.command
	}
}

func TestForCommand(t *testing.T) {
	assert.Equal(t, Decide, ForCommand("decision"))
	assert.Equal(t, DB, ForCommand("db"))
	assert.Equal(t, "", ForCommand("unknown"))
	assert.Equal(t, "Batch import", Describe(Ingest))
}
