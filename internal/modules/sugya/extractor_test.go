package sugya

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Super-Meta77/sefaria-backend/internal/data/graph"
	"github.com/Super-Meta77/sefaria-backend/internal/domain"
)

// flakyTexts fails FetchUnits for selected tractates.
type flakyTexts struct {
	*graph.MemoryGraph
	failFor map[string]bool
}

func (f flakyTexts) FetchUnits(ctx context.Context, tractate, page string, limit int) ([]domain.TextUnit, error) {
	if f.failFor[tractate] {
		return nil, errors.New("connection refused")
	}
	return f.MemoryGraph.FetchUnits(ctx, tractate, page, limit)
}

type downStore struct{}

func (downStore) SaveSugya(context.Context, *domain.SugyaAnalysis) (bool, error) {
	return false, graph.ErrUnavailable
}

func newTestExtractor(t *testing.T, texts TextStore, store SugyaStore) *Extractor {
	t.Helper()
	e, err := NewExtractor(ExtractorDeps{Texts: texts, Sugyot: store})
	require.NoError(t, err)
	return e
}

func seedUnits() []domain.TextUnit {
	return []domain.TextUnit{
		unit("Berakhot 2a:1", "Question one?"),
		unit("Berakhot 2a:2", "Statement one."),
		unit("Berakhot 2a:3", "Dispute here."),
		unit("Berakhot 2b:1", "אמר רבי יוחנן"),
		unit("Eruvin 2a:1", "text"),
		unit("Shabbat 10a:1", "text"),
		unit("Shabbat 10a:2", "more"),
	}
}

func TestNewExtractorRequiresStores(t *testing.T) {
	_, err := NewExtractor(ExtractorDeps{})
	assert.Error(t, err)
	_, err = NewExtractor(ExtractorDeps{Texts: graph.NewMemoryGraph()})
	assert.Error(t, err)
}

func TestExtractOne_SavesEachPage(t *testing.T) {
	g := graph.NewMemoryGraph(seedUnits()...)
	e := newTestExtractor(t, g, g)

	stats, err := e.ExtractOne(context.Background(), "Berakhot", "", 50)
	require.NoError(t, err)
	assert.Equal(t, domain.ExtractionStats{Tractate: "Berakhot", TotalExtracted: 2, Saved: 2}, stats)

	nodes, err := g.ListDialecticNodes(context.Background(), "Berakhot 2a")
	require.NoError(t, err)
	require.Len(t, nodes, 7)
	assert.Equal(t, domain.NodeTeaching, nodes[0].Type)
	assert.Equal(t, []string{"Berakhot 2a:1", "Berakhot 2a:2", "Berakhot 2a:3"}, g.ContainedTextIDs("Berakhot 2a"))
}

func TestExtractOne_PageFilter(t *testing.T) {
	g := graph.NewMemoryGraph(seedUnits()...)
	e := newTestExtractor(t, g, g)

	stats, err := e.ExtractOne(context.Background(), "Berakhot", "2b", 50)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalExtracted)
	s, err := g.GetSugya(context.Background(), "Berakhot 2b")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 1, g.Counts().Sugyot)
}

func TestExtractOne_PageIsNotCrowdedOutByNeighbours(t *testing.T) {
	var units []domain.TextUnit
	for _, page := range []string{"12a", "22a"} {
		for i := 1; i <= 30; i++ {
			units = append(units, unit(fmt.Sprintf("Berakhot %s:%d", page, i), "text"))
		}
	}
	for i := 1; i <= 5; i++ {
		units = append(units, unit(fmt.Sprintf("Berakhot 2a:%d", i), "text"))
	}
	g := graph.NewMemoryGraph(units...)
	e := newTestExtractor(t, g, g)

	stats, err := e.ExtractOne(context.Background(), "Berakhot", "2a", 50)
	require.NoError(t, err)
	assert.Equal(t, domain.ExtractionStats{Tractate: "Berakhot", StartPage: "2a", TotalExtracted: 1, Saved: 1}, stats)

	s, err := g.GetSugya(context.Background(), "Berakhot 2a")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, 1, g.Counts().Sugyot)
}

func TestExtractOne_NoTextIsNotAnError(t *testing.T) {
	g := graph.NewMemoryGraph(seedUnits()...)
	e := newTestExtractor(t, g, g)
	stats, err := e.ExtractOne(context.Background(), "Niddah", "", 50)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalExtracted)
	assert.Equal(t, 0, stats.Failed)
}

func TestExtractOne_FailedWritesAreCounted(t *testing.T) {
	g := graph.NewMemoryGraph(seedUnits()...)
	g.FailWrites.Store(true)
	e := newTestExtractor(t, g, g)
	stats, err := e.ExtractOne(context.Background(), "Berakhot", "", 50)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalExtracted)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 0, stats.Saved)
}

func TestExtractOne_UnavailableStoreAborts(t *testing.T) {
	g := graph.NewMemoryGraph(seedUnits()...)
	e := newTestExtractor(t, g, downStore{})
	stats, err := e.ExtractOne(context.Background(), "Berakhot", "", 50)
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrUnavailable))
	assert.Equal(t, 0, stats.TotalExtracted)
	assert.Equal(t, 0, stats.Saved+stats.Failed)
}

func TestExtractOne_HonoursCancellation(t *testing.T) {
	g := graph.NewMemoryGraph(seedUnits()...)
	e := newTestExtractor(t, g, g)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.ExtractOne(ctx, "Berakhot", "", 50)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractAll_IsolatesTractateFailures(t *testing.T) {
	g := graph.NewMemoryGraph(seedUnits()...)
	texts := flakyTexts{MemoryGraph: g, failFor: map[string]bool{"Eruvin": true}}
	e := newTestExtractor(t, texts, g)

	sum, err := e.ExtractAll(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TractatesFound)
	assert.Equal(t, 2, sum.TractatesProcessed)
	assert.Equal(t, 3, sum.TotalExtracted)
	assert.Equal(t, 3, sum.TotalSaved)

	require.Len(t, sum.TractateDetails, 3)
	assert.Equal(t, "Berakhot", sum.TractateDetails[0].Tractate)
	assert.Equal(t, "Eruvin", sum.TractateDetails[1].Tractate)
	assert.NotEmpty(t, sum.TractateDetails[1].Error)
	assert.Equal(t, "Shabbat", sum.TractateDetails[2].Tractate)
	assert.Empty(t, sum.TractateDetails[2].Error)
	assert.Equal(t, 1, sum.TractateDetails[2].Saved)
}

func TestExtractAll_EmptyStore(t *testing.T) {
	g := graph.NewMemoryGraph()
	e := newTestExtractor(t, g, g)
	sum, err := e.ExtractAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.TractatesFound)
	assert.NotNil(t, sum.TractateDetails)
}
