package sugya

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
)

const (
	maxFallbackLines = 15
	minFallbackNodes = 5
	labelBudget      = 80
	previewBudget    = 100
	mainQuestionMax  = 100
)

var (
	interrogativeMarkers = []string{"למה", "מאי", "מנא", "היכי"}
	assertionMarkers     = []string{"אמר", "תנן", "תניא"}
	disputeMarkers       = []string{"פלוגתא", "מחלוקת"}

	// English markers for translated text, matched as whole words.
	assertionMarkersEN = regexp.MustCompile(`(?i)\b(said|says|taught)\b`)
	disputeMarkersEN   = regexp.MustCompile(`(?i)\bdisput(e|es|ed)\b`)
)

var paddingNodes = []struct {
	Type  domain.NodeType
	Label string
}{
	{domain.NodeChallenge, "Challenge to the statement"},
	{domain.NodeResolution, "Resolution of the challenge"},
	{domain.NodeProof, "Proof from another source"},
	{domain.NodeConclusion, "Final ruling"},
}

// RuleBasedAnalysis derives a linear discourse chain from the first lines of text.
// It never fails; empty text yields only the padding chain.
func RuleBasedAnalysis(ref, text string) *domain.SugyaAnalysis {
	lines := nonEmptyLines(text)
	if len(lines) > maxFallbackLines {
		lines = lines[:maxFallbackLines]
	}

	nodes := make([]domain.DiscourseNode, 0, len(lines)+len(paddingNodes))
	for i, line := range lines {
		pos := i + 1
		typ, speaker := classifyLine(pos, line)
		n := domain.DiscourseNode{
			LocalID:        strconv.Itoa(pos),
			Type:           typ,
			Label:          truncateRunes(line, labelBudget, "..."),
			Speaker:        speaker,
			ContentPreview: truncateRunes(line, previewBudget, ""),
		}
		if pos > 1 {
			n.ParentLocalID = strconv.Itoa(pos - 1)
		}
		nodes = append(nodes, n)
	}

	if len(nodes) < minFallbackNodes {
		base := len(nodes)
		for i, p := range paddingNodes {
			n := domain.DiscourseNode{
				LocalID: strconv.Itoa(base + i + 1),
				Type:    p.Type,
				Label:   p.Label,
				Speaker: "Gemara",
			}
			if base+i > 0 {
				n.ParentLocalID = strconv.Itoa(base + i)
			}
			nodes = append(nodes, n)
		}
	}

	mainQuestion := "Discussion topic"
	if len(lines) > 0 {
		mainQuestion = truncateRunes(lines[0], mainQuestionMax, "")
	}

	return &domain.SugyaAnalysis{
		Ref:          ref,
		Title:        "Discussion on " + ref,
		Summary:      "Talmudic discussion from " + ref,
		Theme:        "Halakhic discourse",
		MainQuestion: mainQuestion,
		Method:       domain.MethodRuleBased,
		Nodes:        nodes,
	}
}

// classifyLine applies the decision order: opening teaching, challenge, statement,
// dispute, then question/answer by 1-based parity.
func classifyLine(pos int, line string) (domain.NodeType, string) {
	switch {
	case pos == 1:
		return domain.NodeTeaching, "Mishnah"
	case strings.Contains(line, "?") || containsAny(line, interrogativeMarkers):
		return domain.NodeChallenge, "Gemara"
	case containsAny(line, assertionMarkers) || assertionMarkersEN.MatchString(line):
		return domain.NodeStatement, "Gemara"
	case containsAny(line, disputeMarkers) || disputeMarkersEN.MatchString(line):
		return domain.NodeDispute, "Talmud"
	case pos%2 == 0:
		return domain.NodeQuestion, "Gemara"
	default:
		return domain.NodeAnswer, "Gemara"
	}
}

func nonEmptyLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// truncateRunes keeps the first max runes of s, appending suffix only when s was cut.
func truncateRunes(s string, max int, suffix string) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max])) + suffix
}
