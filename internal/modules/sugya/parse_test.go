package sugya

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
)

func TestParseModelOutput_ParsesWrappedJSON(t *testing.T) {
	raw := "Here is the analysis:\n```json\n" + `{
		"title": "Time for Evening Shema",
		"summary": "When is the evening Shema recited?",
		"theme": "Shema",
		"main_question": "From when?",
		"dialectic_nodes": [
			{"id": 1, "type": "mishnah", "label": "Opening", "speaker": "Mishnah", "content_preview": "From when", "parent_id": null},
			{"id": "2", "type": "kasha", "label": "Challenge", "speaker": "Gemara", "content_preview": "", "parent_id": 1},
			{"id": 3.0, "type": "whatever", "label": "x", "speaker": "", "content_preview": "", "parent_id": "2"}
		]
	}` + "\n```"
	res := ParseModelOutput("Berakhot 2a", raw)
	require.False(t, res.Malformed(), res.Reason)

	a := res.Analysis
	assert.Equal(t, "Time for Evening Shema", a.Title)
	assert.Equal(t, domain.MethodModel, a.Method)
	require.Len(t, a.Nodes, 3)
	assert.Equal(t, "1", a.Nodes[0].LocalID)
	assert.Equal(t, domain.NodeTeaching, a.Nodes[0].Type)
	assert.Empty(t, a.Nodes[0].ParentLocalID)
	assert.Equal(t, domain.NodeChallenge, a.Nodes[1].Type)
	assert.Equal(t, "1", a.Nodes[1].ParentLocalID)
	assert.Equal(t, "3", a.Nodes[2].LocalID)
	assert.Equal(t, domain.NodeStatement, a.Nodes[2].Type)
}

func TestParseModelOutput_DefaultTitle(t *testing.T) {
	res := ParseModelOutput("Shabbat 10a", `{"dialectic_nodes": []}`)
	require.False(t, res.Malformed())
	assert.Equal(t, "Discussion on Shabbat 10a", res.Analysis.Title)
	assert.Empty(t, res.Analysis.Nodes)
}

func TestParseModelOutput_Malformed(t *testing.T) {
	cases := map[string]string{
		"no braces":     "I cannot help with that.",
		"bad json":      `{"title": "x", "dialectic_nodes": [}`,
		"missing nodes": `{"title": "x"}`,
		"null nodes":    `{"title": "x", "dialectic_nodes": null}`,
		"node no id":    `{"dialectic_nodes": [{"type": "question"}]}`,
		"bad id type":   `{"dialectic_nodes": [{"id": {"a": 1}}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			res := ParseModelOutput("Berakhot 2a", raw)
			assert.True(t, res.Malformed())
			assert.NotEmpty(t, res.Reason)
		})
	}
}
