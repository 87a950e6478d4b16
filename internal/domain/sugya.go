package domain

import (
	"strings"
	"time"
)

// TextUnit is one addressable piece of source text, e.g. "Berakhot 2a:1".
// The pipeline only reads text units; they are owned by the graph store.
type TextUnit struct {
	ID               string   `json:"id"`
	ContentPrimary   []string `json:"content_he"`
	ContentSecondary []string `json:"content_en,omitempty"`
}

// PageGroup holds the text units sharing one "{tractate} {page}" key, in source order.
type PageGroup struct {
	PageRef string     `json:"page_ref"`
	Members []TextUnit `json:"members"`
}

type NodeType string

const (
	NodeQuestion   NodeType = "question"
	NodeAnswer     NodeType = "answer"
	NodeChallenge  NodeType = "challenge"
	NodeResolution NodeType = "resolution"
	NodeTeaching   NodeType = "teaching"
	NodeStatement  NodeType = "statement"
	NodeDispute    NodeType = "dispute"
	NodeProof      NodeType = "proof"
	NodeRefutation NodeType = "refutation"
	NodeConclusion NodeType = "conclusion"
	NodeOpenEnded  NodeType = "open-ended"
)

var nodeTypeAliases = map[string]NodeType{
	"question":   NodeQuestion,
	"answer":     NodeAnswer,
	"challenge":  NodeChallenge,
	"resolution": NodeResolution,
	"teaching":   NodeTeaching,
	"statement":  NodeStatement,
	"dispute":    NodeDispute,
	"proof":      NodeProof,
	"refutation": NodeRefutation,
	"conclusion": NodeConclusion,
	"open-ended": NodeOpenEnded,

	"kasha":     NodeChallenge,
	"kushya":    NodeChallenge,
	"teyuvta":   NodeChallenge,
	"terutz":    NodeResolution,
	"teshuvah":  NodeAnswer,
	"peshat":    NodeAnswer,
	"mishnah":   NodeTeaching,
	"braita":    NodeTeaching,
	"baraita":   NodeTeaching,
	"machloket": NodeDispute,
	"pluga":     NodeDispute,
	"teiku":     NodeOpenEnded,
	"ruling":    NodeConclusion,
}

// NormalizeNodeType maps model vocabulary (including the Aramaic terms) onto NodeType.
// Anything unrecognised becomes a statement.
func NormalizeNodeType(raw string) NodeType {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "_", "-")
	key = strings.ReplaceAll(key, " ", "-")
	if t, ok := nodeTypeAliases[key]; ok {
		return t
	}
	if key == "openended" {
		return NodeOpenEnded
	}
	return NodeStatement
}

// DiscourseNode is one step of a dialectic argument. LocalID is unique within
// its analysis; ParentLocalID is empty for a root.
type DiscourseNode struct {
	LocalID        string   `json:"id"`
	Type           NodeType `json:"type"`
	Label          string   `json:"label"`
	Speaker        string   `json:"speaker"`
	ContentPreview string   `json:"content_preview"`
	ParentLocalID  string   `json:"parent_id,omitempty"`
}

type AnalysisMethod string

const (
	MethodModel     AnalysisMethod = "model"
	MethodRuleBased AnalysisMethod = "rule_based"
)

// SugyaAnalysis is the in-memory result of analysing one page group.
type SugyaAnalysis struct {
	Ref          string          `json:"ref"`
	Title        string          `json:"title"`
	Summary      string          `json:"summary"`
	Theme        string          `json:"theme"`
	MainQuestion string          `json:"main_question"`
	Method       AnalysisMethod  `json:"method"`
	Nodes        []DiscourseNode `json:"dialectic_nodes"`
}

// Sugya is the persisted header of an analysis.
type Sugya struct {
	Ref              string    `json:"ref"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	Theme            string    `json:"theme,omitempty"`
	MainQuestion     string    `json:"main_question,omitempty"`
	ExtractionMethod string    `json:"extraction_method,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitzero"`
	UpdatedAt        time.Time `json:"updated_at,omitzero"`
}

// NormalizedRef is the URL form of a ref ("Berakhot 2a" -> "Berakhot_2a").
func (s Sugya) NormalizedRef() string { return NormalizeRefForURL(s.Ref) }

func NormalizeRefForURL(ref string) string {
	return strings.ReplaceAll(strings.TrimSpace(ref), " ", "_")
}

// RefFromURL reverses NormalizeRefForURL.
func RefFromURL(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "_", " "))
}

// StoredDiscourseNode is a DiscourseNode as read back from the store.
type StoredDiscourseNode struct {
	DiscourseNode
	Key      string `json:"key"`
	SugyaRef string `json:"sugya_ref"`
	Sequence int    `json:"sequence"`
}

// DiscourseTreeNode is the read model used to render a sugya as a tree.
type DiscourseTreeNode struct {
	StoredDiscourseNode
	Depth    int                  `json:"depth"`
	Children []*DiscourseTreeNode `json:"children"`
}

// SugyaStructure is a sugya with its discourse forest. Inferred marks a structure
// rendered from texts because the ref has not been extracted yet.
type SugyaStructure struct {
	Sugya
	Inferred bool                 `json:"inferred,omitempty"`
	Roots    []*DiscourseTreeNode `json:"roots"`
}

type FlowStep struct {
	ID       string       `json:"id"`
	Type     NodeType     `json:"type"`
	Text     string       `json:"text"`
	Speaker  string       `json:"speaker,omitempty"`
	Position FlowPosition `json:"position"`
}

type FlowPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}
