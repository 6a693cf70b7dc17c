package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(Decisions.WithLabelValues("conflict"))
	Decisions.WithLabelValues("conflict").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Decisions.WithLabelValues("conflict")))
}

func TestWriteTextfile(t *testing.T) {
	ClaimsSubmitted.WithLabelValues("reading").Inc()

	path := filepath.Join(t.TempDir(), "prov.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `prov_claims_submitted_total{kind="reading"}`)
}
