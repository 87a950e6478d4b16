package sugya

import (
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

const (
	maxPromptRunes = 4000
	schemaName     = "sugya_analysis"
)

const analysisSystemPrompt = `You are an expert in Talmudic dialectic. You read a single page of Talmud and
map every step of its argument: teachings, questions, answers, challenges, resolutions,
disputes, proofs, refutations and conclusions. Attribute each step to its speaker.`

const analysisUserTemplate = `Analyze this Talmudic sugya from %s and extract ALL dialectic steps.

TEXT:
%s

Provide a COMPLETE analysis with:
1. A concise title (5-10 words) that captures the main topic
2. A one-sentence summary
3. The main theme or question being discussed
4. The COMPLETE dialectic structure: every step, statement and argument

For the dialectic_nodes array include EVERY step of the sugya:
- every question (kasha, kushya, teyuvta)
- every answer (terutz, peshat, teshuvah)
- every teaching (mishnah, braita, statement)
- every dispute (machloket, pluga)
- every challenge and resolution
- every proof and refutation
- all intermediate steps

For each node provide:
- id: sequential number ("1", "2", "3", ...)
- type: one of question, answer, kasha, terutz, mishnah, braita, statement, dispute, proof, refutation, conclusion, teiku
- label: clear description of this step (50-100 characters)
- speaker: who is speaking (Mishnah, Gemara, or a named rabbi)
- content_preview: the first 30-50 words of the step's text
- parent_id: id of the step this responds to ("" for the first step)

Aim for 10-20+ nodes so the whole dialectic flow is captured.`

// BuildPrompt returns the system and user messages for one page. The text is cut
// to a fixed rune budget with a trailing ellipsis.
func BuildPrompt(pageRef, text string) (system, user string) {
	system = analysisSystemPrompt
	user = fmt.Sprintf(analysisUserTemplate, pageRef, truncateRunesRaw(text, maxPromptRunes, "..."))
	return system, user
}

// ResponseSchema is the JSON schema of ModelResponse used for structured output.
func ResponseSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	t := reflect.TypeOf(ModelResponse{})
	return r.Reflect(reflect.New(t).Interface())
}

// truncateRunesRaw cuts without trimming so the model sees text exactly as stored.
func truncateRunesRaw(s string, max int, suffix string) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + suffix
}
