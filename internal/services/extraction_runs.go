package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/Super-Meta77/sefaria-backend/internal/data/graph"
	"github.com/Super-Meta77/sefaria-backend/internal/data/repos/runs"
	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/apierr"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/ctxutil"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/dbctx"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

// ExtractionPipeline is the sugya extractor as seen by the run service.
type ExtractionPipeline interface {
	ExtractOne(ctx context.Context, tractate, startPage string, limit int) (domain.ExtractionStats, error)
	ExtractAll(ctx context.Context, limitPerTractate int) (domain.ExtractionSummary, error)
}

type ExtractOneParams struct {
	Tractate  string `json:"tractate"`
	StartPage string `json:"start_page,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type ExtractAllParams struct {
	LimitPerTractate int `json:"limit_per_tractate,omitempty"`
}

type ExtractionRunService interface {
	ExtractOne(ctx context.Context, p ExtractOneParams) (domain.ExtractionStats, error)
	ExtractAll(ctx context.Context, p ExtractAllParams) (domain.ExtractionSummary, error)
	StartOne(ctx context.Context, p ExtractOneParams) (*domain.ExtractionRun, error)
	StartAll(ctx context.Context, p ExtractAllParams) (*domain.ExtractionRun, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.ExtractionRun, error)
	List(ctx context.Context, limit int) ([]*domain.ExtractionRun, error)
	Wait() error
	Shutdown(ctx context.Context) error
}

type extractionRunService struct {
	log      *logger.Logger
	pipeline ExtractionPipeline
	repo     runs.ExtractionRunRepo
	now      func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	group   errgroup.Group
}

// NewExtractionRunService runs the pipeline inline or in the background. Background
// runs outlive the request that started them and stop at Shutdown.
func NewExtractionRunService(baseLog *logger.Logger, pipeline ExtractionPipeline, repo runs.ExtractionRunRepo) ExtractionRunService {
	ctx, cancel := context.WithCancel(context.Background())
	return &extractionRunService{
		log:      baseLog.With("service", "ExtractionRunService"),
		pipeline: pipeline,
		repo:     repo,
		now:      func() time.Time { return time.Now().UTC() },
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

func (p ExtractOneParams) normalized() (ExtractOneParams, error) {
	p.Tractate = strings.TrimSpace(p.Tractate)
	p.StartPage = strings.TrimSpace(p.StartPage)
	if p.Tractate == "" {
		return p, apierr.BadRequest("tractate_required", errors.New("tractate required"))
	}
	if p.Limit < 0 {
		return p, apierr.BadRequest("invalid_limit", errors.New("limit must be positive"))
	}
	return p, nil
}

func (p ExtractAllParams) normalized() (ExtractAllParams, error) {
	if p.LimitPerTractate < 0 {
		return p, apierr.BadRequest("invalid_limit", errors.New("limit_per_tractate must be positive"))
	}
	return p, nil
}

func (s *extractionRunService) ExtractOne(ctx context.Context, p ExtractOneParams) (domain.ExtractionStats, error) {
	p, err := p.normalized()
	if err != nil {
		return domain.ExtractionStats{}, err
	}
	stats, err := s.pipeline.ExtractOne(ctx, p.Tractate, p.StartPage, p.Limit)
	if err != nil {
		return stats, pipelineErr(err)
	}
	return stats, nil
}

func (s *extractionRunService) ExtractAll(ctx context.Context, p ExtractAllParams) (domain.ExtractionSummary, error) {
	p, err := p.normalized()
	if err != nil {
		return domain.ExtractionSummary{}, err
	}
	sum, err := s.pipeline.ExtractAll(ctx, p.LimitPerTractate)
	if err != nil {
		return sum, pipelineErr(err)
	}
	return sum, nil
}

func (s *extractionRunService) StartOne(ctx context.Context, p ExtractOneParams) (*domain.ExtractionRun, error) {
	p, err := p.normalized()
	if err != nil {
		return nil, err
	}
	return s.start(ctx, domain.ExtractionRunOne, p, func(runCtx context.Context) (any, error) {
		return s.pipeline.ExtractOne(runCtx, p.Tractate, p.StartPage, p.Limit)
	})
}

func (s *extractionRunService) StartAll(ctx context.Context, p ExtractAllParams) (*domain.ExtractionRun, error) {
	p, err := p.normalized()
	if err != nil {
		return nil, err
	}
	return s.start(ctx, domain.ExtractionRunAll, p, func(runCtx context.Context) (any, error) {
		return s.pipeline.ExtractAll(runCtx, p.LimitPerTractate)
	})
}

func (s *extractionRunService) Get(ctx context.Context, id uuid.UUID) (*domain.ExtractionRun, error) {
	run, err := s.repo.GetByID(dbctx.Of(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("load extraction run: %w", err)
	}
	if run == nil {
		return nil, apierr.NotFound("run_not_found", fmt.Errorf("extraction run %s not found", id))
	}
	return run, nil
}

func (s *extractionRunService) List(ctx context.Context, limit int) ([]*domain.ExtractionRun, error) {
	out, err := s.repo.ListRecent(dbctx.Of(ctx), limit)
	if err != nil {
		return nil, fmt.Errorf("list extraction runs: %w", err)
	}
	return out, nil
}

func (s *extractionRunService) Wait() error {
	return s.group.Wait()
}

// Shutdown cancels in-flight runs and waits for them to record their outcome.
func (s *extractionRunService) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *extractionRunService) start(ctx context.Context, kind domain.ExtractionRunKind, params any, fn func(context.Context) (any, error)) (*domain.ExtractionRun, error) {
	if err := s.baseCtx.Err(); err != nil {
		return nil, apierr.Unavailable("shutting_down", errors.New("extraction runs are shutting down"))
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode run params: %w", err)
	}
	run, err := s.repo.Create(dbctx.Of(ctx), &domain.ExtractionRun{
		Kind:   kind,
		Status: domain.RunStatusQueued,
		Params: datatypes.JSON(raw),
	})
	if err != nil {
		return nil, fmt.Errorf("create extraction run: %w", err)
	}
	view := *run

	runCtx := s.baseCtx
	if td := ctxutil.GetTraceData(ctx); td != nil {
		runCtx = ctxutil.WithTraceData(runCtx, td)
	}
	id := run.ID
	runCtx = ctxutil.WithRunID(runCtx, id.String())
	s.group.Go(func() error {
		s.execute(runCtx, id, kind, fn)
		return nil
	})
	return &view, nil
}

func (s *extractionRunService) execute(ctx context.Context, id uuid.UUID, kind domain.ExtractionRunKind, fn func(context.Context) (any, error)) {
	log := s.log.With(append([]interface{}{"kind", string(kind)}, ctxutil.LogFields(ctx)...)...)
	// Bookkeeping writes must land even after shutdown cancels the run.
	writeCtx := context.WithoutCancel(ctx)

	if err := s.repo.MarkRunning(dbctx.Of(writeCtx), id, s.now()); err != nil {
		log.Warn("mark run running failed", "error", err)
	}
	log.Info("Extraction run started")

	res, runErr := fn(ctx)

	status := domain.RunStatusSucceeded
	msg := ""
	if runErr != nil {
		status = domain.RunStatusFailed
		msg = runErr.Error()
	}
	var result datatypes.JSON
	if b, err := json.Marshal(res); err == nil {
		result = datatypes.JSON(b)
	}
	if err := s.repo.MarkFinished(dbctx.Of(writeCtx), id, status, result, msg, s.now()); err != nil {
		log.Error("mark run finished failed", "error", err)
		return
	}
	if runErr != nil {
		log.Warn("Extraction run failed", "error", runErr)
		return
	}
	log.Info("Extraction run finished")
}

func pipelineErr(err error) error {
	switch {
	case errors.Is(err, graph.ErrUnavailable):
		return apierr.Unavailable("graph_unavailable", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apierr.Unavailable("extraction_cancelled", err)
	default:
		return apierr.From(err, "extraction_failed")
	}
}
