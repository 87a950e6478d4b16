package runs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/dbctx"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

type ExtractionRunRepo interface {
	Create(dbc dbctx.Context, run *domain.ExtractionRun) (*domain.ExtractionRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ExtractionRun, error)
	ListRecent(dbc dbctx.Context, limit int) ([]*domain.ExtractionRun, error)
	MarkRunning(dbc dbctx.Context, id uuid.UUID, at time.Time) error
	MarkFinished(dbc dbctx.Context, id uuid.UUID, status string, result datatypes.JSON, errMsg string, at time.Time) error
}

type extractionRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractionRunRepo(db *gorm.DB, baseLog *logger.Logger) ExtractionRunRepo {
	return &extractionRunRepo{
		db:  db,
		log: baseLog.With("repo", "ExtractionRunRepo"),
	}
}

func (r *extractionRunRepo) Create(dbc dbctx.Context, run *domain.ExtractionRun) (*domain.ExtractionRun, error) {
	if run == nil {
		return nil, errors.New("run required")
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = domain.RunStatusQueued
	}
	if len(run.Params) == 0 {
		run.Params = datatypes.JSON([]byte("{}"))
	}
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// GetByID returns (nil, nil) when the run does not exist.
func (r *extractionRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ExtractionRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run domain.ExtractionRun
	err := dbc.DB(r.db).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *extractionRunRepo) ListRecent(dbc dbctx.Context, limit int) ([]*domain.ExtractionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	out := []*domain.ExtractionRun{}
	if err := dbc.DB(r.db).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *extractionRunRepo) MarkRunning(dbc dbctx.Context, id uuid.UUID, at time.Time) error {
	return dbc.DB(r.db).Model(&domain.ExtractionRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.RunStatusRunning,
			"started_at": at,
			"updated_at": at,
		}).Error
}

func (r *extractionRunRepo) MarkFinished(dbc dbctx.Context, id uuid.UUID, status string, result datatypes.JSON, errMsg string, at time.Time) error {
	updates := map[string]interface{}{
		"status":      status,
		"error":       errMsg,
		"finished_at": at,
		"updated_at":  at,
	}
	if len(result) > 0 {
		updates["result"] = result
	}
	return dbc.DB(r.db).Model(&domain.ExtractionRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}
