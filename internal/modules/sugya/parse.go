package sugya

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
)

// ModelNode is one dialectic step as returned by the model.
type ModelNode struct {
	ID             FlexID `json:"id" jsonschema:"description=Sequential step number as a string (1, 2, 3, ...)"`
	Type           string `json:"type" jsonschema:"description=question, answer, kasha, terutz, mishnah, braita, statement, dispute, proof, refutation, conclusion, teiku"`
	Label          string `json:"label" jsonschema:"description=Clear description of this step (50-100 characters)"`
	Speaker        string `json:"speaker" jsonschema:"description=Who is speaking (Mishnah, Gemara, or a named rabbi)"`
	ContentPreview string `json:"content_preview" jsonschema:"description=First 30-50 words from the text of this step"`
	ParentID       FlexID `json:"parent_id" jsonschema:"description=ID of the step this responds to, empty for the first step"`
}

// ModelResponse is the structured-output shape requested from the model.
type ModelResponse struct {
	Title          string      `json:"title" jsonschema:"description=Concise title of 5-10 words"`
	Summary        string      `json:"summary" jsonschema:"description=One-sentence summary"`
	Theme          string      `json:"theme" jsonschema:"description=Main theme under discussion"`
	MainQuestion   string      `json:"main_question" jsonschema:"description=The central question of the sugya"`
	DialecticNodes []ModelNode `json:"dialectic_nodes" jsonschema:"description=Every dialectic step in order"`
}

// FlexID accepts a JSON string, number or null.
type FlexID struct {
	Value string
	Set   bool
}

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = FlexID{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID{Value: strings.TrimSpace(s), Set: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be string, number or null: %w", err)
	}
	s := n.String()
	if i, err := strconv.ParseFloat(s, 64); err == nil && i == float64(int64(i)) {
		s = strconv.FormatInt(int64(i), 10)
	}
	*f = FlexID{Value: s, Set: true}
	return nil
}

// JSONSchema advertises ids as plain strings in the structured-output schema.
func (FlexID) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}

func (f FlexID) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// ParseResult is either Parsed (Analysis non-nil) or Malformed (Reason set).
type ParseResult struct {
	Analysis *domain.SugyaAnalysis
	Reason   string
}

func (r ParseResult) Malformed() bool { return r.Analysis == nil }

func malformed(format string, args ...any) ParseResult {
	return ParseResult{Reason: fmt.Sprintf(format, args...)}
}

// ParseModelOutput decodes the outermost brace-delimited span of raw. Partial
// responses are not salvaged: a missing node list or a node without an id makes
// the whole response malformed.
func ParseModelOutput(ref, raw string) ParseResult {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return malformed("no json object in response")
	}
	span := raw[start : end+1]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &fields); err != nil {
		return malformed("decode: %v", err)
	}
	if v, ok := fields["dialectic_nodes"]; !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return malformed("missing dialectic_nodes")
	}

	var resp ModelResponse
	if err := json.Unmarshal([]byte(span), &resp); err != nil {
		return malformed("decode: %v", err)
	}

	nodes := make([]domain.DiscourseNode, 0, len(resp.DialecticNodes))
	for i, n := range resp.DialecticNodes {
		if !n.ID.Set || n.ID.Value == "" {
			return malformed("node %d has no id", i)
		}
		nodes = append(nodes, domain.DiscourseNode{
			LocalID:        n.ID.Value,
			Type:           domain.NormalizeNodeType(n.Type),
			Label:          truncateRunes(strings.TrimSpace(n.Label), previewBudget, ""),
			Speaker:        strings.TrimSpace(n.Speaker),
			ContentPreview: truncateRunes(strings.TrimSpace(n.ContentPreview), previewBudget, ""),
			ParentLocalID:  n.ParentID.Value,
		})
	}

	title := strings.TrimSpace(resp.Title)
	if title == "" {
		title = "Discussion on " + ref
	}
	return ParseResult{Analysis: &domain.SugyaAnalysis{
		Ref:          ref,
		Title:        title,
		Summary:      strings.TrimSpace(resp.Summary),
		Theme:        strings.TrimSpace(resp.Theme),
		MainQuestion: strings.TrimSpace(resp.MainQuestion),
		Method:       domain.MethodModel,
		Nodes:        nodes,
	}}
}
