package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/Super-Meta77/sefaria-backend/internal/data/db"
	"github.com/Super-Meta77/sefaria-backend/internal/data/graph"
	"github.com/Super-Meta77/sefaria-backend/internal/data/repos/runs"
	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/apierr"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

type fakePipeline struct {
	mu       sync.Mutex
	calls    []string
	oneErr   error
	block    chan struct{}
	oneStats domain.ExtractionStats
}

func (f *fakePipeline) ExtractOne(ctx context.Context, tractate, startPage string, limit int) (domain.ExtractionStats, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("one:%s:%s:%d", tractate, startPage, limit))
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return domain.ExtractionStats{}, ctx.Err()
		}
	}
	if f.oneErr != nil {
		return domain.ExtractionStats{}, f.oneErr
	}
	return f.oneStats, nil
}

func (f *fakePipeline) ExtractAll(ctx context.Context, limitPerTractate int) (domain.ExtractionSummary, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf("all:%d", limitPerTractate))
	f.mu.Unlock()
	return domain.ExtractionSummary{TractatesFound: 2, TractatesProcessed: 2, TractateDetails: []domain.TractateDetail{}}, nil
}

func runRepo(t *testing.T) runs.ExtractionRunRepo {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrateAll(gdb))
	return runs.NewExtractionRunRepo(gdb, logger.Nop())
}

func TestExtractOneValidatesTractate(t *testing.T) {
	svc := NewExtractionRunService(logger.Nop(), &fakePipeline{}, runRepo(t))
	_, err := svc.ExtractOne(context.Background(), ExtractOneParams{Tractate: "  "})
	var ae *apierr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, "tractate_required", ae.Code)
}

func TestExtractOneSyncMapsUnavailable(t *testing.T) {
	p := &fakePipeline{oneErr: fmt.Errorf("save Berakhot 2a: %w", graph.ErrUnavailable)}
	svc := NewExtractionRunService(logger.Nop(), p, runRepo(t))
	_, err := svc.ExtractOne(context.Background(), ExtractOneParams{Tractate: "Berakhot"})
	var ae *apierr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusServiceUnavailable, ae.Status)
}

func TestStartOneRecordsSuccess(t *testing.T) {
	p := &fakePipeline{oneStats: domain.ExtractionStats{Tractate: "Berakhot", TotalExtracted: 3, Saved: 3}}
	svc := NewExtractionRunService(logger.Nop(), p, runRepo(t))
	ctx := context.Background()

	run, err := svc.StartOne(ctx, ExtractOneParams{Tractate: " Berakhot ", StartPage: "2a", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusQueued, run.Status)
	assert.JSONEq(t, `{"tractate":"Berakhot","start_page":"2a","limit":10}`, string(run.Params))
	require.NoError(t, svc.Wait())

	got, err := svc.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSucceeded, got.Status)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	var stats domain.ExtractionStats
	require.NoError(t, json.Unmarshal(got.Result, &stats))
	assert.Equal(t, 3, stats.Saved)
	assert.Equal(t, []string{"one:Berakhot:2a:10"}, p.calls)
}

func TestStartOneRecordsFailure(t *testing.T) {
	p := &fakePipeline{oneErr: errors.New("fetch texts: boom")}
	svc := NewExtractionRunService(logger.Nop(), p, runRepo(t))
	ctx := context.Background()

	run, err := svc.StartOne(ctx, ExtractOneParams{Tractate: "Berakhot"})
	require.NoError(t, err)
	require.NoError(t, svc.Wait())

	got, err := svc.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	assert.Equal(t, "fetch texts: boom", got.Error)
}

func TestStartAllAndList(t *testing.T) {
	p := &fakePipeline{}
	svc := NewExtractionRunService(logger.Nop(), p, runRepo(t))
	ctx := context.Background()

	run, err := svc.StartAll(ctx, ExtractAllParams{LimitPerTractate: 5})
	require.NoError(t, err)
	assert.Equal(t, domain.ExtractionRunAll, run.Kind)
	require.NoError(t, svc.Wait())

	list, err := svc.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.RunStatusSucceeded, list[0].Status)
	assert.Equal(t, []string{"all:5"}, p.calls)
}

func TestShutdownCancelsInFlightRun(t *testing.T) {
	p := &fakePipeline{block: make(chan struct{})}
	svc := NewExtractionRunService(logger.Nop(), p, runRepo(t))
	ctx := context.Background()

	run, err := svc.StartOne(ctx, ExtractOneParams{Tractate: "Shabbat"})
	require.NoError(t, err)

	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(sctx))

	got, err := svc.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "context canceled")

	_, err = svc.StartOne(ctx, ExtractOneParams{Tractate: "Shabbat"})
	var ae *apierr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "shutting_down", ae.Code)
}

func TestGetMissingRun(t *testing.T) {
	svc := NewExtractionRunService(logger.Nop(), &fakePipeline{}, runRepo(t))
	_, err := svc.Get(context.Background(), uuid.New())
	var ae *apierr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusNotFound, ae.Status)
}
