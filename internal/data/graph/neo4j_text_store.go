package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Super-Meta77/sefaria-backend/internal/domain"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/neo4jdb"
)

// TextGraph reads Text nodes loaded by the library importer.
type TextGraph struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewTextGraph(client *neo4jdb.Client, log *logger.Logger) *TextGraph {
	if log == nil {
		log = logger.Nop()
	}
	return &TextGraph{client: client, log: log.With("repo", "TextGraph")}
}

const fetchPageUnitsCypher = `
MATCH (t:Text)
WHERE t.id STARTS WITH $prefix
RETURN t.id AS id, t.content_he AS content_he, t.content_en AS content_en
ORDER BY t.id
LIMIT $limit
`

const fetchTractateUnitsCypher = `
MATCH (t:Text)
WHERE t.id STARTS WITH $prefix
  AND t.id =~ '.*\\d+[ab]:.*'
RETURN t.id AS id, t.content_he AS content_he, t.content_en AS content_en
ORDER BY t.id
LIMIT $limit
`

const discoverTractatesCypher = `
MATCH (t:Text)
WHERE t.id =~ '.*\\d+[ab]:.*'
WITH split(t.id, ' ') AS parts
WHERE size(parts) > 1
RETURN DISTINCT parts[0] AS tractate
ORDER BY tractate
`

const fetchRefUnitsCypher = `
MATCH (t:Text)
WHERE t.id CONTAINS $ref
RETURN t.id AS id, t.content_he AS content_he, t.content_en AS content_en
ORDER BY t.id
LIMIT $limit
`

// PagePrefix is the id prefix shared by every unit of one page, e.g. "Berakhot 2a:".
func PagePrefix(tractate, page string) string {
	return strings.TrimSpace(tractate) + " " + strings.TrimSpace(page) + ":"
}

func (g *TextGraph) available() error {
	if g == nil || g.client == nil || g.client.Driver == nil {
		return ErrUnavailable
	}
	return nil
}

// FetchUnits returns up to limit units of a tractate in id order. With a page, ids
// must start with "{tractate} {page}:" so neighbours such as 12a never take the
// limit from 2a; otherwise ids must start with "{tractate} " and carry a page token.
func (g *TextGraph) FetchUnits(ctx context.Context, tractate, page string, limit int) ([]domain.TextUnit, error) {
	if err := g.available(); err != nil {
		return nil, err
	}
	tractate = strings.TrimSpace(tractate)
	page = strings.TrimSpace(page)
	if limit <= 0 {
		limit = 50
	}
	cypher := fetchTractateUnitsCypher
	params := map[string]any{"prefix": tractate + " ", "limit": int64(limit)}
	if page != "" {
		cypher = fetchPageUnitsCypher
		params = map[string]any{"prefix": PagePrefix(tractate, page), "limit": int64(limit)}
	}
	units, err := g.readUnits(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("fetch units %s %s: %w", tractate, page, err)
	}
	return units, nil
}

// FetchTextsForRef returns the units whose id contains ref.
func (g *TextGraph) FetchTextsForRef(ctx context.Context, ref string, limit int) ([]domain.TextUnit, error) {
	if err := g.available(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	units, err := g.readUnits(ctx, fetchRefUnitsCypher, map[string]any{"ref": strings.TrimSpace(ref), "limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("fetch texts for %q: %w", ref, err)
	}
	return units, nil
}

func (g *TextGraph) DiscoverTractates(ctx context.Context) ([]string, error) {
	if err := g.available(); err != nil {
		return nil, err
	}
	session := g.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, discoverTractatesCypher, nil)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0)
		for res.Next(ctx) {
			if s := strings.TrimSpace(recString(res.Record(), "tractate")); s != "" {
				names = append(names, s)
			}
		}
		return names, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("discover tractates: %w", err)
	}
	names := out.([]string)
	sort.Strings(names)
	return names, nil
}

func (g *TextGraph) readUnits(ctx context.Context, cypher string, params map[string]any) ([]domain.TextUnit, error) {
	session := g.client.ReadSession(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		units := make([]domain.TextUnit, 0)
		for res.Next(ctx) {
			rec := res.Record()
			he, _ := rec.Get("content_he")
			en, _ := rec.Get("content_en")
			units = append(units, domain.TextUnit{
				ID:               recString(rec, "id"),
				ContentPrimary:   contentStrings(he),
				ContentSecondary: contentStrings(en),
			})
		}
		return units, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return out.([]domain.TextUnit), nil
}

// contentStrings normalises a content property stored either as a string or a list.
func contentStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if x == nil {
				continue
			}
			if s, ok := x.(string); ok {
				out = append(out, s)
			} else {
				out = append(out, fmt.Sprint(x))
			}
		}
		return out
	default:
		return []string{fmt.Sprint(t)}
	}
}
