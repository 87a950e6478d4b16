package sugya

import (
	"context"
	"embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

const seedsPathEnv = "SUGYA_SEEDS_YAML"

//go:embed seeds.yaml
var seedsFS embed.FS

type SeedSugya struct {
	Ref     string `yaml:"ref" json:"ref"`
	Title   string `yaml:"title" json:"title"`
	Summary string `yaml:"summary" json:"summary"`
}

type seedFile struct {
	Version int         `yaml:"version"`
	Sugyot  []SeedSugya `yaml:"sugyot"`
}

// HeaderStore creates sugya headers without discourse nodes.
type HeaderStore interface {
	UpsertSugyaHeader(ctx context.Context, ref, title, summary string) error
}

type SeedResult struct {
	Created int      `json:"created"`
	Total   int      `json:"total"`
	Failed  []string `json:"failed,omitempty"`
}

// LoadSeeds reads the seed list from SUGYA_SEEDS_YAML when set, else the embedded file.
func LoadSeeds() ([]SeedSugya, error) {
	var (
		data []byte
		err  error
	)
	if p := strings.TrimSpace(os.Getenv(seedsPathEnv)); p != "" {
		data, err = os.ReadFile(p)
	} else {
		data, err = seedsFS.ReadFile("seeds.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read seeds: %w", err)
	}
	return parseSeeds(data)
}

func parseSeeds(data []byte) ([]SeedSugya, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seeds: %w", err)
	}
	out := make([]SeedSugya, 0, len(f.Sugyot))
	for i, s := range f.Sugyot {
		s.Ref = strings.TrimSpace(s.Ref)
		s.Title = strings.TrimSpace(s.Title)
		if s.Ref == "" || s.Title == "" {
			return nil, fmt.Errorf("parse seeds: entry %d needs ref and title", i)
		}
		out = append(out, s)
	}
	return out, nil
}

// Seed upserts every seed header. A failing entry is recorded and the rest continue.
func Seed(ctx context.Context, log *logger.Logger, store HeaderStore, seeds []SeedSugya) SeedResult {
	if log == nil {
		log = logger.Nop()
	}
	res := SeedResult{Total: len(seeds)}
	for _, s := range seeds {
		if err := store.UpsertSugyaHeader(ctx, s.Ref, s.Title, s.Summary); err != nil {
			log.Warn("Seed sugya failed", "ref", s.Ref, "error", err)
			res.Failed = append(res.Failed, s.Ref)
			continue
		}
		res.Created++
	}
	log.Info("Seeded sugyot", "created", res.Created, "total", res.Total)
	return res
}
