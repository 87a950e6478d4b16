package sugya

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Super-Meta77/sefaria-backend/internal/data/graph"
)

func TestLoadSeeds_Embedded(t *testing.T) {
	t.Setenv(seedsPathEnv, "")
	seeds, err := LoadSeeds()
	require.NoError(t, err)
	require.Len(t, seeds, 6)
	assert.Equal(t, "Berakhot 2a", seeds[0].Ref)
	assert.Equal(t, "Time for Evening Shema", seeds[0].Title)
	assert.Equal(t, "Torah and Blessings", seeds[5].Title)
}

func TestLoadSeeds_FromEnvPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "seeds.yaml")
	require.NoError(t, os.WriteFile(p, []byte("sugyot:\n  - ref: Shabbat 2a\n    title: Carrying\n"), 0o600))
	t.Setenv(seedsPathEnv, p)
	seeds, err := LoadSeeds()
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, "Shabbat 2a", seeds[0].Ref)
}

func TestParseSeeds_RejectsIncompleteEntries(t *testing.T) {
	_, err := parseSeeds([]byte("sugyot:\n  - ref: Shabbat 2a\n"))
	assert.Error(t, err)
}

func TestSeed_UpsertsHeaders(t *testing.T) {
	g := graph.NewMemoryGraph()
	seeds := []SeedSugya{
		{Ref: "Berakhot 2a", Title: "A"},
		{Ref: " ", Title: "bad"},
		{Ref: "Berakhot 2b", Title: "B"},
	}
	res := Seed(context.Background(), nil, g, seeds)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, []string{" "}, res.Failed)

	res = Seed(context.Background(), nil, g, seeds[:1])
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 2, g.Counts().Sugyot)
}
