package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleTaxonomy = `
bridge:
  - code: "2.A"
    label: "Mineral industry"
  - code: "2.B"
    label: "Chemical industry"
sectors:
  "23311": "2.A.4"
`

func TestParseOverridesSections(t *testing.T) {
	tx, err := Parse([]byte(sampleTaxonomy))
	require.NoError(t, err)

	code, err := tx.Bridge.ToCode("Mineral industry")
	require.NoError(t, err)
	assert.Equal(t, "2.A", code)
	_, ok := tx.Bridge.ToLabel("2.C")
	assert.False(t, ok)

	got, ok := tx.Sectors.Lookup("23311")
	assert.True(t, ok)
	assert.Equal(t, "2.A.4", got)
	assert.Equal(t, 1, tx.Sectors.Len())
}

func TestParseMissingSectionsKeepDefaults(t *testing.T) {
	tx, err := Parse([]byte("sectors:\n  \"10000\": \"2.A\"\n"))
	require.NoError(t, err)
	assert.Len(t, tx.Bridge.Entries(), 3)
}

func TestParseRejectsAmbiguousFile(t *testing.T) {
	_, err := Parse([]byte(`
bridge:
  - code: "2.A"
    label: "same"
  - code: "2.B"
    label: "same"
`))
	assert.ErrorIs(t, err, ErrAmbiguousLabel)
}

func TestWatcherReloadKeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTaxonomy), 0o600))

	holder := NewHolder(nil)
	w := NewWatcher(path, holder, zap.NewNop())

	require.True(t, w.Reload())
	code, err := holder.Bridge().ToCode("Chemical industry")
	require.NoError(t, err)
	assert.Equal(t, "2.B", code)

	require.NoError(t, os.WriteFile(path, []byte("bridge: [\n"), 0o600))
	assert.False(t, w.Reload())
	code, err = holder.Bridge().ToCode("Chemical industry")
	require.NoError(t, err)
	assert.Equal(t, "2.B", code)
}

func TestHolderIgnoresNil(t *testing.T) {
	h := NewHolder(nil)
	h.Store(nil)
	assert.NotNil(t, h.Get())
	assert.Equal(t, 14, h.Sectors().Len())
}
