package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/neo4jdb"
)

// ErrUnavailable marks a store that cannot be reached at all, as opposed to a
// single failed write.
var ErrUnavailable = errors.New("graph store unavailable")

var errRefRequired = errors.New("ref required")

// DialecticNodeKey is the store-wide key of a discourse node.
func DialecticNodeKey(ref, localID string) string {
	return ref + "-" + localID
}

type SugyaGraph struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewSugyaGraph(client *neo4jdb.Client, log *logger.Logger) *SugyaGraph {
	if log == nil {
		log = logger.Nop()
	}
	return &SugyaGraph{client: client, log: log.With("repo", "SugyaGraph")}
}

type sugyaRows struct {
	Header map[string]any
	Nodes  []map[string]any
	Links  []map[string]any
}

// buildSugyaRows flattens an analysis into UNWIND rows. Nodes without a local id
// are skipped and sequence is the 1-based position in the analysis.
func buildSugyaRows(a *domain.SugyaAnalysis, now time.Time) sugyaRows {
	ts := now.UTC().Format(time.RFC3339Nano)
	ref := strings.TrimSpace(a.Ref)
	method := string(a.Method)
	if method == "" {
		method = string(domain.MethodRuleBased)
	}
	rows := sugyaRows{
		Header: map[string]any{
			"ref":               ref,
			"title":             a.Title,
			"summary":           a.Summary,
			"theme":             a.Theme,
			"main_question":     a.MainQuestion,
			"extraction_method": method,
			"now":               ts,
		},
		Nodes: make([]map[string]any, 0, len(a.Nodes)),
		Links: make([]map[string]any, 0, len(a.Nodes)),
	}
	for i, n := range a.Nodes {
		id := strings.TrimSpace(n.LocalID)
		if id == "" {
			continue
		}
		parent := strings.TrimSpace(n.ParentLocalID)
		rows.Nodes = append(rows.Nodes, map[string]any{
			"id":              DialecticNodeKey(ref, id),
			"local_id":        id,
			"sugya_ref":       ref,
			"type":            string(n.Type),
			"label":           n.Label,
			"speaker":         n.Speaker,
			"content_preview": n.ContentPreview,
			"sequence":        int64(i + 1),
			"parent_id":       parent,
			"updated_at":      ts,
		})
		if parent != "" {
			rows.Links = append(rows.Links, map[string]any{
				"parent": DialecticNodeKey(ref, parent),
				"child":  DialecticNodeKey(ref, id),
			})
		}
	}
	return rows
}

const upsertSugyaCypher = `
WITH $h AS h
MERGE (s:Sugya {ref: h.ref})
ON CREATE SET s.created_at = h.now
SET s.title = h.title,
    s.summary = h.summary,
    s.theme = h.theme,
    s.main_question = h.main_question,
    s.extraction_method = h.extraction_method,
    s.updated_at = h.now
`

const linkSugyaTextsCypher = `
MATCH (s:Sugya {ref: $ref})
MATCH (t:Text)
WHERE t.id CONTAINS $ref
MERGE (s)-[:CONTAINS_TEXT]->(t)
`

const upsertDialecticNodesCypher = `
MATCH (s:Sugya {ref: $ref})
UNWIND $nodes AS n
MERGE (d:DialecticNode {id: n.id})
SET d += n
MERGE (s)-[:HAS_DIALECTIC_NODE]->(d)
`

const linkDialecticNodesCypher = `
UNWIND $links AS l
MATCH (p:DialecticNode {id: l.parent})
MATCH (c:DialecticNode {id: l.child})
MERGE (p)-[:LEADS_TO]->(c)
`

func (g *SugyaGraph) available() error {
	if g == nil || g.client == nil || g.client.Driver == nil {
		return ErrUnavailable
	}
	return nil
}

// EnsureSchema creates uniqueness constraints. Failures are logged and ignored.
func (g *SugyaGraph) EnsureSchema(ctx context.Context) {
	if g.available() != nil {
		return
	}
	session := g.client.WriteSession(ctx)
	defer session.Close(ctx)
	stmts := []string{
		`CREATE CONSTRAINT sugya_ref_unique IF NOT EXISTS FOR (s:Sugya) REQUIRE s.ref IS UNIQUE`,
		`CREATE CONSTRAINT dialectic_node_id_unique IF NOT EXISTS FOR (d:DialecticNode) REQUIRE d.id IS UNIQUE`,
		`CREATE INDEX text_id_index IF NOT EXISTS FOR (t:Text) ON (t.id)`,
	}
	for _, q := range stmts {
		if res, err := session.Run(ctx, q, nil); err != nil {
			g.log.Warn("neo4j schema init failed (continuing)", "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

// SaveSugya upserts the header, containment edges, discourse nodes and LEADS_TO
// edges in one write transaction. Write failures return (false, nil); an
// unreachable store returns an error wrapping ErrUnavailable.
func (g *SugyaGraph) SaveSugya(ctx context.Context, a *domain.SugyaAnalysis) (bool, error) {
	if err := g.available(); err != nil {
		return false, err
	}
	if a == nil || strings.TrimSpace(a.Ref) == "" {
		return false, nil
	}
	rows := buildSugyaRows(a, time.Now())
	ref := rows.Header["ref"].(string)

	session := g.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := runConsume(ctx, tx, upsertSugyaCypher, map[string]any{"h": rows.Header}); err != nil {
			return nil, err
		}
		if err := runConsume(ctx, tx, linkSugyaTextsCypher, map[string]any{"ref": ref}); err != nil {
			return nil, err
		}
		if len(rows.Nodes) > 0 {
			if err := runConsume(ctx, tx, upsertDialecticNodesCypher, map[string]any{"ref": ref, "nodes": rows.Nodes}); err != nil {
				return nil, err
			}
		}
		if len(rows.Links) > 0 {
			if err := runConsume(ctx, tx, linkDialecticNodesCypher, map[string]any{"links": rows.Links}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		if unavailable(ctx, err) {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		g.log.Error("Failed to save sugya", "ref", ref, "error", err)
		return false, nil
	}
	return true, nil
}

// UpsertSugyaHeader creates or refreshes a sugya without discourse nodes and links
// its texts. Existing theme, main question and nodes are left untouched.
func (g *SugyaGraph) UpsertSugyaHeader(ctx context.Context, ref, title, summary string) error {
	if err := g.available(); err != nil {
		return err
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return errRefRequired
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	session := g.client.WriteSession(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := runConsume(ctx, tx, `
MERGE (s:Sugya {ref: $ref})
ON CREATE SET s.created_at = $now
SET s.title = $title,
    s.summary = $summary,
    s.updated_at = $now
`, map[string]any{"ref": ref, "title": title, "summary": summary, "now": now}); err != nil {
			return nil, err
		}
		return nil, runConsume(ctx, tx, linkSugyaTextsCypher, map[string]any{"ref": ref})
	})
	if err != nil {
		return fmt.Errorf("upsert sugya %q: %w", ref, err)
	}
	return nil
}

// GetSugya returns the persisted header for ref, or (nil, nil) when absent.
func (g *SugyaGraph) GetSugya(ctx context.Context, ref string) (*domain.Sugya, error) {
	if err := g.available(); err != nil {
		return nil, err
	}
	session := g.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (s:Sugya {ref: $ref})
RETURN s.ref AS ref, s.title AS title, s.summary AS summary, s.theme AS theme,
       s.main_question AS main_question, s.extraction_method AS extraction_method,
       s.created_at AS created_at, s.updated_at AS updated_at
`, map[string]any{"ref": strings.TrimSpace(ref)})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		s := sugyaFromRecord(res.Record())
		return &s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get sugya %q: %w", ref, err)
	}
	if out == nil {
		return nil, nil
	}
	return out.(*domain.Sugya), nil
}

// ListSugyot returns all persisted sugya headers ordered by ref.
func (g *SugyaGraph) ListSugyot(ctx context.Context) ([]domain.Sugya, error) {
	if err := g.available(); err != nil {
		return nil, err
	}
	session := g.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (s:Sugya)
RETURN s.ref AS ref, s.title AS title, s.summary AS summary, s.theme AS theme,
       s.main_question AS main_question, s.extraction_method AS extraction_method,
       s.created_at AS created_at, s.updated_at AS updated_at
ORDER BY s.ref
`, nil)
		if err != nil {
			return nil, err
		}
		list := make([]domain.Sugya, 0)
		for res.Next(ctx) {
			list = append(list, sugyaFromRecord(res.Record()))
		}
		return list, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list sugyot: %w", err)
	}
	return out.([]domain.Sugya), nil
}

// ListDialecticNodes returns the discourse nodes of ref ordered by sequence.
func (g *SugyaGraph) ListDialecticNodes(ctx context.Context, ref string) ([]domain.StoredDiscourseNode, error) {
	if err := g.available(); err != nil {
		return nil, err
	}
	session := g.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (s:Sugya {ref: $ref})-[:HAS_DIALECTIC_NODE]->(d:DialecticNode)
RETURN d.id AS id, d.local_id AS local_id, d.type AS type, d.label AS label,
       d.speaker AS speaker, d.content_preview AS content_preview,
       d.sequence AS sequence, d.parent_id AS parent_id
ORDER BY d.sequence, d.id
`, map[string]any{"ref": strings.TrimSpace(ref)})
		if err != nil {
			return nil, err
		}
		list := make([]domain.StoredDiscourseNode, 0)
		for res.Next(ctx) {
			list = append(list, dialecticNodeFromRecord(strings.TrimSpace(ref), res.Record()))
		}
		return list, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list dialectic nodes %q: %w", ref, err)
	}
	return out.([]domain.StoredDiscourseNode), nil
}

func runConsume(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func unavailable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return true
	}
	return neo4j.IsConnectivityError(err)
}

func sugyaFromRecord(rec *neo4j.Record) domain.Sugya {
	return domain.Sugya{
		Ref:              recString(rec, "ref"),
		Title:            recString(rec, "title"),
		Summary:          recString(rec, "summary"),
		Theme:            recString(rec, "theme"),
		MainQuestion:     recString(rec, "main_question"),
		ExtractionMethod: recString(rec, "extraction_method"),
		CreatedAt:        recTime(rec, "created_at"),
		UpdatedAt:        recTime(rec, "updated_at"),
	}
}

func dialecticNodeFromRecord(ref string, rec *neo4j.Record) domain.StoredDiscourseNode {
	key := recString(rec, "id")
	local := recString(rec, "local_id")
	if local == "" {
		local = strings.TrimPrefix(key, ref+"-")
	}
	return domain.StoredDiscourseNode{
		DiscourseNode: domain.DiscourseNode{
			LocalID:        local,
			Type:           domain.NormalizeNodeType(recString(rec, "type")),
			Label:          recString(rec, "label"),
			Speaker:        recString(rec, "speaker"),
			ContentPreview: recString(rec, "content_preview"),
			ParentLocalID:  recString(rec, "parent_id"),
		},
		Key:      key,
		SugyaRef: ref,
		Sequence: recInt(rec, "sequence"),
	}
}

func recString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func recInt(rec *neo4j.Record, key string) int {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

// recTime accepts RFC3339 strings and native temporal values written by older loaders.
func recTime(rec *neo4j.Record, key string) time.Time {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return time.Time{}
	}
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
	case time.Time:
		return t
	case neo4j.LocalDateTime:
		return t.Time()
	}
	return time.Time{}
}
