package sugya

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/ctxutil"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

const (
	DefaultLimit            = 50
	DefaultLimitPerTractate = 100
)

var tracer = otel.Tracer("github.com/Super-Meta77/sefaria-backend/internal/modules/sugya")

// TextStore is the read side of the text graph.
type TextStore interface {
	FetchUnits(ctx context.Context, tractate, page string, limit int) ([]domain.TextUnit, error)
	DiscoverTractates(ctx context.Context) ([]string, error)
}

// SugyaStore persists analyses. A false result is a handled write failure; an
// error means the store itself is unavailable.
type SugyaStore interface {
	SaveSugya(ctx context.Context, a *domain.SugyaAnalysis) (bool, error)
}

type ExtractorDeps struct {
	Log      *logger.Logger
	Texts    TextStore
	Sugyot   SugyaStore
	Analyzer Analyzer
}

// Extractor sequences fetch, group, analyse and save. One page is fully saved
// before the next is analysed. Runs take no locks; concurrent runs over the same
// pages rely on the idempotent upsert keys of the store.
type Extractor struct {
	log      *logger.Logger
	texts    TextStore
	sugyot   SugyaStore
	analyzer Analyzer
}

func NewExtractor(deps ExtractorDeps) (*Extractor, error) {
	if deps.Texts == nil {
		return nil, fmt.Errorf("sugya extractor: text store required")
	}
	if deps.Sugyot == nil {
		return nil, fmt.Errorf("sugya extractor: sugya store required")
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	an := deps.Analyzer
	if an == nil {
		an = NewAnalyzer(log, nil)
	}
	return &Extractor{
		log:      log.With("service", "SugyaExtractor"),
		texts:    deps.Texts,
		sugyot:   deps.Sugyot,
		analyzer: an,
	}, nil
}

// ExtractOne extracts one tractate, optionally a single page of it. Fetch and
// store-unavailable errors abort the run.
func (e *Extractor) ExtractOne(ctx context.Context, tractate, startPage string, limit int) (domain.ExtractionStats, error) {
	tractate = strings.TrimSpace(tractate)
	startPage = strings.TrimSpace(startPage)
	if limit <= 0 {
		limit = DefaultLimit
	}
	stats := domain.ExtractionStats{Tractate: tractate, StartPage: startPage}
	if tractate == "" {
		return stats, fmt.Errorf("tractate required")
	}

	ctx, span := tracer.Start(ctx, "sugya.ExtractOne")
	defer span.End()
	span.SetAttributes(
		attribute.String("sugya.tractate", tractate),
		attribute.String("sugya.start_page", startPage),
		attribute.Int("sugya.limit", limit),
	)

	units, err := e.texts.FetchUnits(ctx, tractate, startPage, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch units")
		return stats, fmt.Errorf("fetch units for %s: %w", tractate, err)
	}
	groups := GroupByPage(units, startPage)
	log := e.log.With(ctxutil.LogFields(ctx)...)
	log.Info("Extracting sugyot", "tractate", tractate, "start_page", startPage, "units", len(units), "pages", len(groups))

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ok, err := e.extractPage(ctx, g)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save sugya")
			return stats, fmt.Errorf("save %s: %w", g.PageRef, err)
		}
		stats.TotalExtracted++
		if ok {
			stats.Saved++
		} else {
			stats.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("sugya.extracted", stats.TotalExtracted),
		attribute.Int("sugya.saved", stats.Saved),
		attribute.Int("sugya.failed", stats.Failed),
	)
	log.Info("Extraction complete", "tractate", tractate, "extracted", stats.TotalExtracted, "saved", stats.Saved, "failed", stats.Failed)
	return stats, nil
}

func (e *Extractor) extractPage(ctx context.Context, g domain.PageGroup) (bool, error) {
	ctx, span := tracer.Start(ctx, "sugya.ExtractPage")
	defer span.End()
	span.SetAttributes(attribute.String("sugya.ref", g.PageRef), attribute.Int("sugya.members", len(g.Members)))

	analysis := e.analyzer.Analyze(ctx, g.PageRef, CombineText(g.Members))
	span.SetAttributes(
		attribute.String("sugya.method", string(analysis.Method)),
		attribute.Int("sugya.nodes", len(analysis.Nodes)),
	)

	ok, err := e.sugyot.SaveSugya(ctx, analysis)
	if err != nil {
		return false, err
	}
	if ok {
		e.log.Debug("Saved sugya", "ref", analysis.Ref, "title", analysis.Title, "nodes", len(analysis.Nodes))
	} else {
		e.log.Warn("Failed to save sugya", "ref", analysis.Ref)
	}
	return ok, nil
}

// ExtractAll runs ExtractOne over every discovered tractate in lexical order.
// A failing tractate is recorded in its detail and does not stop the others.
func (e *Extractor) ExtractAll(ctx context.Context, limitPerTractate int) (domain.ExtractionSummary, error) {
	if limitPerTractate <= 0 {
		limitPerTractate = DefaultLimitPerTractate
	}
	summary := domain.ExtractionSummary{TractateDetails: []domain.TractateDetail{}}

	ctx, span := tracer.Start(ctx, "sugya.ExtractAll")
	defer span.End()

	tractates, err := e.texts.DiscoverTractates(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discover tractates")
		return summary, fmt.Errorf("discover tractates: %w", err)
	}
	tractates = append([]string(nil), tractates...)
	sort.Strings(tractates)
	summary.TractatesFound = len(tractates)
	span.SetAttributes(attribute.Int("sugya.tractates", len(tractates)))
	e.log.Info("Discovered tractates", "count", len(tractates), "tractates", tractates)

	for i, t := range tractates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		e.log.Info("Processing tractate", "tractate", t, "index", i+1, "of", len(tractates))
		stats, err := e.ExtractOne(ctx, t, "", limitPerTractate)
		detail := domain.TractateDetail{
			Tractate:  t,
			Extracted: stats.TotalExtracted,
			Saved:     stats.Saved,
			Failed:    stats.Failed,
		}
		if err != nil {
			detail.Error = err.Error()
			e.log.Error("Tractate extraction failed", "tractate", t, "error", err)
		} else {
			summary.TractatesProcessed++
			summary.TotalExtracted += stats.TotalExtracted
			summary.TotalSaved += stats.Saved
			summary.TotalFailed += stats.Failed
		}
		summary.TractateDetails = append(summary.TractateDetails, detail)
	}
	return summary, nil
}
