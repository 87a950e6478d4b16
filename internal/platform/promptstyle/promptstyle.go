package promptstyle

import "strings"

const marker = "SEFARIA_PROMPT_STYLE_V1"

// ApplySystem prepends a short guidance block to a system prompt. Prompts that
// already carry the marker are returned unchanged.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" {
		return base
	}
	if strings.Contains(base, marker) {
		return base
	}

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou assist with the study of classical Jewish texts.")
	b.WriteString("\nQuote the provided source text; do not invent sources, rabbis, or citations.")
	b.WriteString("\nKeep Hebrew and Aramaic excerpts in their original script.")
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "json":
		b.WriteString("\nReturn a single JSON object that conforms to the schema and contains no extra keys.")
	default:
		b.WriteString("\nBe concise.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return strings.TrimSpace(b.String())
}
