package graph

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/neo4jdb"
)

func TestBuildSugyaRows(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := &domain.SugyaAnalysis{
		Ref:   " Berakhot 2a ",
		Title: "T",
		Nodes: []domain.DiscourseNode{
			{LocalID: "1", Type: domain.NodeTeaching},
			{LocalID: ""},
			{LocalID: "2", Type: domain.NodeChallenge, ParentLocalID: "1"},
		},
	}
	rows := buildSugyaRows(a, now)

	assert.Equal(t, "Berakhot 2a", rows.Header["ref"])
	assert.Equal(t, "rule_based", rows.Header["extraction_method"])
	assert.Equal(t, "2024-05-01T12:00:00Z", rows.Header["now"])

	require.Len(t, rows.Nodes, 2)
	assert.Equal(t, "Berakhot 2a-1", rows.Nodes[0]["id"])
	assert.Equal(t, int64(1), rows.Nodes[0]["sequence"])
	assert.Equal(t, "Berakhot 2a-2", rows.Nodes[1]["id"])
	assert.Equal(t, int64(3), rows.Nodes[1]["sequence"])
	assert.Equal(t, "challenge", rows.Nodes[1]["type"])

	require.Len(t, rows.Links, 1)
	assert.Equal(t, "Berakhot 2a-1", rows.Links[0]["parent"])
	assert.Equal(t, "Berakhot 2a-2", rows.Links[0]["child"])
}

func TestContentStrings(t *testing.T) {
	assert.Nil(t, contentStrings(nil))
	assert.Nil(t, contentStrings("  "))
	assert.Equal(t, []string{"a"}, contentStrings("a"))
	assert.Equal(t, []string{"a", "b"}, contentStrings([]any{"a", nil, "b"}))
	assert.Equal(t, []string{"7"}, contentStrings(int64(7)))
}

func TestUnconfiguredStoresAreUnavailable(t *testing.T) {
	ctx := context.Background()
	sg := NewSugyaGraph(nil, nil)
	_, err := sg.SaveSugya(ctx, sampleAnalysis("Berakhot 2a", "1"))
	assert.True(t, errors.Is(err, ErrUnavailable))

	tg := NewTextGraph(nil, nil)
	_, err = tg.DiscoverTractates(ctx)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestSugyaGraphIntegration(t *testing.T) {
	uri := os.Getenv("TEST_NEO4J_URI")
	if uri == "" {
		t.Skip("set TEST_NEO4J_URI to run neo4j integration tests")
	}
	ctx := context.Background()
	client, err := neo4jdb.New(ctx, neo4jdb.Config{
		URI:      uri,
		User:     os.Getenv("TEST_NEO4J_USER"),
		Password: os.Getenv("TEST_NEO4J_PASSWORD"),
	}, logger.Nop())
	require.NoError(t, err)
	defer client.Close(ctx)

	sg := NewSugyaGraph(client, logger.Nop())
	sg.EnsureSchema(ctx)

	ref := "Testtractate 2a"
	a := sampleAnalysis(ref, "1", "2", "3")
	for i := 0; i < 2; i++ {
		ok, err := sg.SaveSugya(ctx, a)
		require.NoError(t, err)
		require.True(t, ok)
	}

	s, err := sg.GetSugya(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, a.Title, s.Title)

	nodes, err := sg.ListDialecticNodes(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
	assert.Equal(t, "2", nodes[2].ParentLocalID)
}
