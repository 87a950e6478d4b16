package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Super-Meta77/sefaria-backend/internal/data/graph"
	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/modules/sugya"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/apierr"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/cache"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

const (
	defaultRefTextLimit = 20
	// An empty graph lists at most this many refs inferred from texts.
	inferredListMax              = 20
	inferredListUnitsPerTractate = 200
)

// SugyaReadStore is the read side of the sugya graph.
type SugyaReadStore interface {
	GetSugya(ctx context.Context, ref string) (*domain.Sugya, error)
	ListSugyot(ctx context.Context) ([]domain.Sugya, error)
	ListDialecticNodes(ctx context.Context, ref string) ([]domain.StoredDiscourseNode, error)
}

// RefTextStore reads source texts. The tractate listing backs the inferred views
// shown before anything has been extracted.
type RefTextStore interface {
	sugya.TextStore
	FetchTextsForRef(ctx context.Context, ref string, limit int) ([]domain.TextUnit, error)
}

type SugyaSummary struct {
	Ref        string `json:"ref"`
	Title      string `json:"title"`
	Normalized string `json:"normalized"`
}

type SugyaReader interface {
	List(ctx context.Context) ([]SugyaSummary, error)
	Structure(ctx context.Context, ref string) (*domain.SugyaStructure, error)
	Flow(ctx context.Context, ref string) ([]domain.FlowStep, error)
	Texts(ctx context.Context, ref string, limit int) ([]domain.TextUnit, error)
}

type sugyaReader struct {
	log   *logger.Logger
	store SugyaReadStore
	texts RefTextStore
	cache cache.Cache
}

// NewSugyaReader serves rendered read models. A nil cache disables caching.
func NewSugyaReader(baseLog *logger.Logger, store SugyaReadStore, texts RefTextStore, c cache.Cache) SugyaReader {
	return &sugyaReader{
		log:   baseLog.With("service", "SugyaReader"),
		store: store,
		texts: texts,
		cache: c,
	}
}

func listCacheKey() string { return "sugya:list" }

func structureCacheKey(ref string) string { return "sugya:structure:" + ref }

func flowCacheKey(ref string) string { return "sugya:flow:" + ref }

func (s *sugyaReader) List(ctx context.Context) ([]SugyaSummary, error) {
	out := []SugyaSummary{}
	if s.cachedJSON(ctx, listCacheKey(), &out) {
		return out, nil
	}
	rows, err := s.store.ListSugyot(ctx)
	if err != nil {
		return nil, storeErr("list sugyot", err)
	}
	for _, r := range rows {
		out = append(out, SugyaSummary{Ref: r.Ref, Title: r.Title, Normalized: r.NormalizedRef()})
	}
	if len(out) == 0 {
		if out, err = s.inferList(ctx); err != nil {
			return nil, err
		}
	}
	s.storeJSON(ctx, listCacheKey(), out)
	return out, nil
}

// inferList names one sugya per page found in the texts, in tractate then id order.
func (s *sugyaReader) inferList(ctx context.Context) ([]SugyaSummary, error) {
	out := []SugyaSummary{}
	tractates, err := s.texts.DiscoverTractates(ctx)
	if err != nil {
		return nil, storeErr("discover tractates", err)
	}
	for _, t := range tractates {
		units, err := s.texts.FetchUnits(ctx, t, "", inferredListUnitsPerTractate)
		if err != nil {
			return nil, storeErr("fetch units", err)
		}
		for _, g := range sugya.GroupByPage(units, "") {
			ref := g.PageRef
			out = append(out, SugyaSummary{Ref: ref, Title: "Discussion on " + ref, Normalized: domain.NormalizeRefForURL(ref)})
			if len(out) == inferredListMax {
				return out, nil
			}
		}
	}
	return out, nil
}

func (s *sugyaReader) Structure(ctx context.Context, ref string) (*domain.SugyaStructure, error) {
	ref, err := cleanRef(ref)
	if err != nil {
		return nil, err
	}
	var cached domain.SugyaStructure
	if s.cachedJSON(ctx, structureCacheKey(ref), &cached) {
		return &cached, nil
	}

	header, err := s.store.GetSugya(ctx, ref)
	if err != nil {
		return nil, storeErr("load sugya", err)
	}
	if header == nil {
		return s.inferStructure(ctx, ref)
	}
	nodes, err := s.store.ListDialecticNodes(ctx, ref)
	if err != nil {
		return nil, storeErr("load dialectic nodes", err)
	}
	out := &domain.SugyaStructure{Sugya: *header, Roots: sugya.BuildTree(nodes)}
	s.storeJSON(ctx, structureCacheKey(ref), out)
	return out, nil
}

func (s *sugyaReader) inferStructure(ctx context.Context, ref string) (*domain.SugyaStructure, error) {
	texts, err := s.texts.FetchTextsForRef(ctx, ref, defaultRefTextLimit)
	if err != nil {
		return nil, storeErr("load texts", err)
	}
	out := sugya.InferStructure(ref, texts)
	if out == nil {
		return nil, apierr.NotFound("sugya_not_found", fmt.Errorf("sugya %q not found", ref))
	}
	s.storeJSON(ctx, structureCacheKey(ref), out)
	return out, nil
}

func (s *sugyaReader) Flow(ctx context.Context, ref string) ([]domain.FlowStep, error) {
	ref, err := cleanRef(ref)
	if err != nil {
		return nil, err
	}
	out := []domain.FlowStep{}
	if s.cachedJSON(ctx, flowCacheKey(ref), &out) {
		return out, nil
	}
	st, err := s.Structure(ctx, ref)
	if err != nil {
		return nil, err
	}
	out = sugya.BuildFlow(st.Roots)
	s.storeJSON(ctx, flowCacheKey(ref), out)
	return out, nil
}

func (s *sugyaReader) Texts(ctx context.Context, ref string, limit int) ([]domain.TextUnit, error) {
	ref, err := cleanRef(ref)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultRefTextLimit
	}
	units, err := s.texts.FetchTextsForRef(ctx, ref, limit)
	if err != nil {
		return nil, storeErr("load texts", err)
	}
	if units == nil {
		units = []domain.TextUnit{}
	}
	return units, nil
}

func (s *sugyaReader) cachedJSON(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	b, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("cache get failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		s.log.Warn("cache entry unreadable", "key", key, "error", err)
		return false
	}
	return true
}

func (s *sugyaReader) storeJSON(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, b); err != nil {
		s.log.Warn("cache set failed", "key", key, "error", err)
	}
}

// cleanRef accepts both "Berakhot_2a" and "Berakhot 2a".
func cleanRef(raw string) (string, error) {
	ref := domain.RefFromURL(raw)
	if ref == "" {
		return "", apierr.BadRequest("invalid_ref", fmt.Errorf("ref required"))
	}
	return ref, nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, graph.ErrUnavailable) {
		return apierr.Unavailable("graph_unavailable", fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// GraphWriter is the write side of the sugya graph.
type GraphWriter interface {
	sugya.SugyaStore
	sugya.HeaderStore
}

// InvalidatingSugyaStore drops cached read models for a ref after it is written.
type InvalidatingSugyaStore struct {
	next  GraphWriter
	cache cache.Cache
	log   *logger.Logger
}

func NewInvalidatingSugyaStore(baseLog *logger.Logger, next GraphWriter, c cache.Cache) *InvalidatingSugyaStore {
	return &InvalidatingSugyaStore{next: next, cache: c, log: baseLog.With("service", "InvalidatingSugyaStore")}
}

func (s *InvalidatingSugyaStore) SaveSugya(ctx context.Context, a *domain.SugyaAnalysis) (bool, error) {
	ok, err := s.next.SaveSugya(ctx, a)
	if ok && a != nil {
		s.invalidate(ctx, a.Ref)
	}
	return ok, err
}

func (s *InvalidatingSugyaStore) UpsertSugyaHeader(ctx context.Context, ref, title, summary string) error {
	if err := s.next.UpsertSugyaHeader(ctx, ref, title, summary); err != nil {
		return err
	}
	s.invalidate(ctx, ref)
	return nil
}

func (s *InvalidatingSugyaStore) invalidate(ctx context.Context, ref string) {
	if s.cache == nil {
		return
	}
	ref = strings.TrimSpace(ref)
	if err := s.cache.Delete(ctx, listCacheKey(), structureCacheKey(ref), flowCacheKey(ref)); err != nil {
		s.log.Warn("cache invalidation failed", "ref", ref, "error", err)
	}
}
