package app

import (
	"context"
	"fmt"

	"github.com/Super-Meta77/sefaria-backend/internal/data/graph"
	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/modules/sugya"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/gemini"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/neo4jdb"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/openai"
)

// Graph is every graph operation the app needs, on one store.
type Graph interface {
	sugya.TextStore
	sugya.SugyaStore
	sugya.HeaderStore
	FetchTextsForRef(ctx context.Context, ref string, limit int) ([]domain.TextUnit, error)
	GetSugya(ctx context.Context, ref string) (*domain.Sugya, error)
	ListSugyot(ctx context.Context) ([]domain.Sugya, error)
	ListDialecticNodes(ctx context.Context, ref string) ([]domain.StoredDiscourseNode, error)
}

type neo4jGraph struct {
	*graph.TextGraph
	*graph.SugyaGraph
}

// wireGraph returns the Neo4j-backed graph, or an empty in-process graph when
// NEO4J_URI is unset.
func wireGraph(ctx context.Context, log *logger.Logger, cfg neo4jdb.Config) (Graph, *neo4jdb.Client, error) {
	client, err := neo4jdb.New(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("init neo4j: %w", err)
	}
	if client == nil {
		log.Warn("NEO4J_URI not set; using in-process graph (data is not persisted)")
		return graph.NewMemoryGraph(), nil, nil
	}
	sg := graph.NewSugyaGraph(client, log)
	sg.EnsureSchema(ctx)
	return neo4jGraph{TextGraph: graph.NewTextGraph(client, log), SugyaGraph: sg}, client, nil
}

type completerCloser struct {
	sugya.Completer
	close func() error
}

// wireCompleter picks the model backend. A nil completer means rule-based analysis only.
func wireCompleter(ctx context.Context, log *logger.Logger, cfg Config) (*completerCloser, error) {
	provider := cfg.AnalyzerProvider
	if provider == "" || provider == ProviderAuto {
		switch {
		case cfg.OpenAI.Configured():
			provider = ProviderOpenAI
		case cfg.Gemini.APIKey != "":
			provider = ProviderGemini
		default:
			provider = ProviderRuleBased
		}
	}

	switch provider {
	case ProviderOpenAI:
		c, err := openai.NewClient(log, cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("init openai: %w", err)
		}
		log.Info("Analyzer backend", "provider", provider, "model", cfg.OpenAI.Model)
		return &completerCloser{Completer: c, close: func() error { return nil }}, nil
	case ProviderGemini:
		c, err := gemini.New(ctx, log, cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("init gemini: %w", err)
		}
		log.Info("Analyzer backend", "provider", provider, "model", cfg.Gemini.Model)
		return &completerCloser{Completer: c, close: c.Close}, nil
	case ProviderRuleBased:
		log.Warn("No model configured; sugyot will be analysed with the rule-based fallback")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown ANALYZER_PROVIDER %q", cfg.AnalyzerProvider)
	}
}
