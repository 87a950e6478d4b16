package sugya

import (
	"sort"
	"strings"

	"github.com/Super-Meta77/sefaria-backend/internal/data/graph"
	"github.com/Super-Meta77/sefaria-backend/internal/domain"
)

// BuildTree arranges stored nodes into a forest by parent id. Nodes whose parent is
// missing become roots. Cycles are broken at their lowest-sequence member, so every
// node appears exactly once.
func BuildTree(nodes []domain.StoredDiscourseNode) []*domain.DiscourseTreeNode {
	ordered := append([]domain.StoredDiscourseNode(nil), nodes...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	byID := make(map[string]domain.StoredDiscourseNode, len(ordered))
	order := make([]string, 0, len(ordered))
	for _, n := range ordered {
		if _, dup := byID[n.LocalID]; dup {
			continue
		}
		byID[n.LocalID] = n
		order = append(order, n.LocalID)
	}

	children := map[string][]string{}
	rootIDs := make([]string, 0)
	for _, id := range order {
		p := byID[id].ParentLocalID
		if _, ok := byID[p]; ok && p != "" && p != id {
			children[p] = append(children[p], id)
			continue
		}
		rootIDs = append(rootIDs, id)
	}

	visited := make(map[string]bool, len(order))
	var walk func(id string, depth int) *domain.DiscourseTreeNode
	walk = func(id string, depth int) *domain.DiscourseTreeNode {
		visited[id] = true
		tn := &domain.DiscourseTreeNode{
			StoredDiscourseNode: byID[id],
			Depth:               depth,
			Children:            []*domain.DiscourseTreeNode{},
		}
		for _, c := range children[id] {
			if visited[c] {
				continue
			}
			tn.Children = append(tn.Children, walk(c, depth+1))
		}
		return tn
	}

	roots := make([]*domain.DiscourseTreeNode, 0, len(rootIDs))
	for _, id := range rootIDs {
		roots = append(roots, walk(id, 0))
	}
	for _, id := range order {
		if visited[id] {
			continue
		}
		r := walk(id, 0)
		r.ParentLocalID = ""
		roots = append(roots, r)
	}
	return roots
}

// BuildFlow flattens a forest in depth-first order. X is the visit index and Y the depth.
func BuildFlow(roots []*domain.DiscourseTreeNode) []domain.FlowStep {
	out := make([]domain.FlowStep, 0)
	var visit func(n *domain.DiscourseTreeNode)
	visit = func(n *domain.DiscourseTreeNode) {
		text := n.Label
		if text == "" {
			text = n.ContentPreview
		}
		out = append(out, domain.FlowStep{
			ID:       n.LocalID,
			Type:     n.Type,
			Text:     text,
			Speaker:  n.Speaker,
			Position: domain.FlowPosition{X: len(out), Y: n.Depth},
		})
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return out
}

const (
	inferredChildren    = 5
	inferredRootLocalID = "root"
)

// InferStructure renders a provisional structure for a ref that has texts but no
// stored analysis: a root question followed by one child per leading text unit.
// It returns nil when there are no texts.
func InferStructure(ref string, texts []domain.TextUnit) *domain.SugyaStructure {
	if len(texts) == 0 {
		return nil
	}
	nodes := []domain.StoredDiscourseNode{{
		DiscourseNode: domain.DiscourseNode{
			LocalID: inferredRootLocalID,
			Type:    domain.NodeQuestion,
			Label:   inferredMainQuestion(texts[0]),
		},
		Key:      graph.DialecticNodeKey(ref, inferredRootLocalID),
		SugyaRef: ref,
	}}
	for i, u := range texts {
		if i == inferredChildren {
			break
		}
		content := StripHTML(strings.Join(u.ContentPrimary, " "))
		typ := inferredNodeType(content, i)
		nodes = append(nodes, domain.StoredDiscourseNode{
			DiscourseNode: domain.DiscourseNode{
				LocalID:        u.ID,
				Type:           typ,
				Label:          inferredLabel(content, typ),
				ContentPreview: truncateRunes(strings.TrimSpace(content), previewBudget, ""),
				ParentLocalID:  inferredRootLocalID,
			},
			Key:      graph.DialecticNodeKey(ref, u.ID),
			SugyaRef: ref,
			Sequence: i + 1,
		})
	}
	return &domain.SugyaStructure{
		Sugya: domain.Sugya{
			Ref:     ref,
			Title:   "Discussion on " + ref,
			Summary: "Talmudic discussion from " + ref,
		},
		Inferred: true,
		Roots:    BuildTree(nodes),
	}
}

func inferredMainQuestion(first domain.TextUnit) string {
	content := strings.TrimSpace(StripHTML(strings.Join(first.ContentPrimary, " ")))
	if content == "" {
		return "What is the main topic of discussion?"
	}
	return strings.TrimSpace(truncateRunes(content, mainQuestionMax, "")) + "..."
}

// inferredNodeType uses the Hebrew markers first, then cycles answer/resolution
// by 0-based position with the opening unit as the question.
func inferredNodeType(content string, index int) domain.NodeType {
	switch {
	case containsAny(content, interrogativeMarkers):
		return domain.NodeChallenge
	case containsAny(content, assertionMarkers):
		return domain.NodeAnswer
	case containsAny(content, disputeMarkers):
		return domain.NodeDispute
	case index == 0:
		return domain.NodeQuestion
	case index%3 == 2:
		return domain.NodeResolution
	default:
		return domain.NodeAnswer
	}
}

func inferredLabel(content string, typ domain.NodeType) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return "[" + strings.ToUpper(string(typ[:1])) + string(typ[1:]) + "]"
	}
	return truncateRunes(content, labelBudget, "...")
}
