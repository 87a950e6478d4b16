package graph

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
)

var pagedIDRe = regexp.MustCompile(`.*\d+[ab]:.*`)

type memEdge struct{ from, to string }

// MemoryGraph is an in-process stand-in for the Neo4j stores. It uses the same
// keys and the same substring containment rule.
type MemoryGraph struct {
	mu         sync.RWMutex
	texts      map[string]domain.TextUnit
	sugyot     map[string]domain.Sugya
	nodes      map[string]domain.StoredDiscourseNode
	hasNode    map[memEdge]struct{}
	leadsTo    map[memEdge]struct{}
	contains   map[memEdge]struct{}
	now        func() time.Time
	// FailWrites makes SaveSugya report a failed write.
	FailWrites atomic.Bool
}

func NewMemoryGraph(units ...domain.TextUnit) *MemoryGraph {
	g := &MemoryGraph{
		texts:    map[string]domain.TextUnit{},
		sugyot:   map[string]domain.Sugya{},
		nodes:    map[string]domain.StoredDiscourseNode{},
		hasNode:  map[memEdge]struct{}{},
		leadsTo:  map[memEdge]struct{}{},
		contains: map[memEdge]struct{}{},
		now:      time.Now,
	}
	g.AddTexts(units...)
	return g
}

func (g *MemoryGraph) AddTexts(units ...domain.TextUnit) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, u := range units {
		if strings.TrimSpace(u.ID) == "" {
			continue
		}
		g.texts[u.ID] = u
	}
}

func (g *MemoryGraph) sortedTextIDs() []string {
	ids := make([]string, 0, len(g.texts))
	for id := range g.texts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *MemoryGraph) FetchUnits(ctx context.Context, tractate, page string, limit int) ([]domain.TextUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tractate = strings.TrimSpace(tractate)
	page = strings.TrimSpace(page)
	if limit <= 0 {
		limit = 50
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.TextUnit, 0)
	for _, id := range g.sortedTextIDs() {
		var ok bool
		if page != "" {
			ok = strings.HasPrefix(id, PagePrefix(tractate, page))
		} else {
			ok = strings.HasPrefix(id, tractate+" ") && pagedIDRe.MatchString(id)
		}
		if !ok {
			continue
		}
		out = append(out, g.texts[id])
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (g *MemoryGraph) FetchTextsForRef(ctx context.Context, ref string, limit int) ([]domain.TextUnit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	ref = strings.TrimSpace(ref)
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.TextUnit, 0)
	for _, id := range g.sortedTextIDs() {
		if strings.Contains(id, ref) {
			out = append(out, g.texts[id])
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (g *MemoryGraph) DiscoverTractates(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	seen := map[string]struct{}{}
	for id := range g.texts {
		if !pagedIDRe.MatchString(id) {
			continue
		}
		parts := strings.Split(id, " ")
		if len(parts) < 2 || parts[0] == "" {
			continue
		}
		seen[parts[0]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (g *MemoryGraph) SaveSugya(ctx context.Context, a *domain.SugyaAnalysis) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if a == nil || strings.TrimSpace(a.Ref) == "" || g.FailWrites.Load() {
		return false, nil
	}
	now := g.now().UTC()
	rows := buildSugyaRows(a, now)
	ref := rows.Header["ref"].(string)

	g.mu.Lock()
	defer g.mu.Unlock()

	s, exists := g.sugyot[ref]
	if !exists {
		s = domain.Sugya{Ref: ref, CreatedAt: now}
	}
	s.Title = a.Title
	s.Summary = a.Summary
	s.Theme = a.Theme
	s.MainQuestion = a.MainQuestion
	s.ExtractionMethod = rows.Header["extraction_method"].(string)
	s.UpdatedAt = now
	g.sugyot[ref] = s
	g.linkTextsLocked(ref)

	for _, r := range rows.Nodes {
		key := r["id"].(string)
		g.nodes[key] = domain.StoredDiscourseNode{
			DiscourseNode: domain.DiscourseNode{
				LocalID:        r["local_id"].(string),
				Type:           domain.NodeType(r["type"].(string)),
				Label:          r["label"].(string),
				Speaker:        r["speaker"].(string),
				ContentPreview: r["content_preview"].(string),
				ParentLocalID:  r["parent_id"].(string),
			},
			Key:      key,
			SugyaRef: ref,
			Sequence: int(r["sequence"].(int64)),
		}
		g.hasNode[memEdge{ref, key}] = struct{}{}
	}
	for _, l := range rows.Links {
		p, c := l["parent"].(string), l["child"].(string)
		if _, ok := g.nodes[p]; !ok {
			continue
		}
		if _, ok := g.nodes[c]; !ok {
			continue
		}
		g.leadsTo[memEdge{p, c}] = struct{}{}
	}
	return true, nil
}

func (g *MemoryGraph) UpsertSugyaHeader(ctx context.Context, ref, title, summary string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return errRefRequired
	}
	now := g.now().UTC()
	g.mu.Lock()
	defer g.mu.Unlock()
	s, exists := g.sugyot[ref]
	if !exists {
		s = domain.Sugya{Ref: ref, CreatedAt: now}
	}
	s.Title = title
	s.Summary = summary
	s.UpdatedAt = now
	g.sugyot[ref] = s
	g.linkTextsLocked(ref)
	return nil
}

func (g *MemoryGraph) linkTextsLocked(ref string) {
	for id := range g.texts {
		if strings.Contains(id, ref) {
			g.contains[memEdge{ref, id}] = struct{}{}
		}
	}
}

func (g *MemoryGraph) GetSugya(ctx context.Context, ref string) (*domain.Sugya, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sugyot[strings.TrimSpace(ref)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (g *MemoryGraph) ListSugyot(ctx context.Context) ([]domain.Sugya, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.Sugya, 0, len(g.sugyot))
	for _, s := range g.sugyot {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref < out[j].Ref })
	return out, nil
}

func (g *MemoryGraph) ListDialecticNodes(ctx context.Context, ref string) ([]domain.StoredDiscourseNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ref = strings.TrimSpace(ref)
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.StoredDiscourseNode, 0)
	for e := range g.hasNode {
		if e.from != ref {
			continue
		}
		if n, ok := g.nodes[e.to]; ok {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// Counts reports record and edge totals; used to check idempotence.
type Counts struct {
	Sugyot, DialecticNodes, ContainsText, HasDialecticNode, LeadsTo int
}

func (g *MemoryGraph) Counts() Counts {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Counts{
		Sugyot:           len(g.sugyot),
		DialecticNodes:   len(g.nodes),
		ContainsText:     len(g.contains),
		HasDialecticNode: len(g.hasNode),
		LeadsTo:          len(g.leadsTo),
	}
}

// ContainedTextIDs lists the text ids linked to ref, sorted.
func (g *MemoryGraph) ContainedTextIDs(ref string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0)
	for e := range g.contains {
		if e.from == ref {
			out = append(out, e.to)
		}
	}
	sort.Strings(out)
	return out
}
