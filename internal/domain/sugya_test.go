package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNodeType(t *testing.T) {
	cases := map[string]NodeType{
		"question":   NodeQuestion,
		"Kasha":      NodeChallenge,
		"terutz":     NodeResolution,
		"mishnah":    NodeTeaching,
		"braita":     NodeTeaching,
		"teiku":      NodeOpenEnded,
		"open_ended": NodeOpenEnded,
		"Open Ended": NodeOpenEnded,
		" proof ":    NodeProof,
		"machloket":  NodeDispute,
		"":           NodeStatement,
		"midrash":    NodeStatement,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeNodeType(in), "input %q", in)
	}
}

func TestRefURLRoundTrip(t *testing.T) {
	assert.Equal(t, "Berakhot_2a", NormalizeRefForURL(" Berakhot 2a "))
	assert.Equal(t, "Berakhot 2a", RefFromURL("Berakhot_2a"))
	assert.Equal(t, "Berakhot 2a", RefFromURL("Berakhot 2a"))
	assert.Equal(t, "Bava_Metzia_10b", Sugya{Ref: "Bava Metzia 10b"}.NormalizedRef())
}

func TestSugyaJSONOmitsUnsetTimes(t *testing.T) {
	b, err := json.Marshal(Sugya{Ref: "Berakhot 2a", Title: "t"})
	assert.NoError(t, err)
	assert.NotContains(t, string(b), "created_at")
	assert.NotContains(t, string(b), "updated_at")

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err = json.Marshal(Sugya{Ref: "Berakhot 2a", CreatedAt: at, UpdatedAt: at})
	assert.NoError(t, err)
	assert.Contains(t, string(b), `"created_at":"2024-01-02T03:04:05Z"`)
}
