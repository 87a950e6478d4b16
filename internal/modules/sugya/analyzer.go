package sugya

import (
	"context"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

// Completer is the model port. It returns the raw text of a structured-output completion.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user, schemaName string, schema any) (string, error)
}

// Analyzer turns one page of text into a discourse analysis. It never fails.
type Analyzer interface {
	Analyze(ctx context.Context, pageRef, text string) *domain.SugyaAnalysis
}

type dialecticAnalyzer struct {
	log *logger.Logger
	ai  Completer
}

// NewAnalyzer returns an analyzer backed by ai. With a nil Completer every page is
// analysed by the rule-based strategy.
func NewAnalyzer(log *logger.Logger, ai Completer) Analyzer {
	if log == nil {
		log = logger.Nop()
	}
	return &dialecticAnalyzer{log: log.With("service", "DialecticAnalyzer"), ai: ai}
}

func (a *dialecticAnalyzer) Analyze(ctx context.Context, pageRef, text string) *domain.SugyaAnalysis {
	if a.ai == nil {
		return RuleBasedAnalysis(pageRef, text)
	}

	system, user := BuildPrompt(pageRef, text)
	raw, err := a.ai.CompleteJSON(ctx, system, user, schemaName, ResponseSchema())
	if err != nil {
		a.log.Warn("model analysis failed; using rule-based analysis", "ref", pageRef, "error", err)
		return RuleBasedAnalysis(pageRef, text)
	}

	res := ParseModelOutput(pageRef, raw)
	if res.Malformed() {
		a.log.Warn("malformed model output; discarding", "ref", pageRef, "reason", res.Reason)
		return RuleBasedAnalysis(pageRef, "")
	}
	return res.Analysis
}
