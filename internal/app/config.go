package app

import (
	"strings"
	"time"

	"github.com/Super-Meta77/sefaria-backend/internal/data/db"
	"github.com/Super-Meta77/sefaria-backend/internal/observability"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/cache"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/envutil"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/gemini"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/neo4jdb"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/openai"
)

const serviceName = "sefaria-backend"

const (
	ProviderAuto      = "auto"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderRuleBased = "rule_based"
)

type Config struct {
	LogMode          string
	Port             string
	CORSOrigins      []string
	AnalyzerProvider string
	ShutdownTimeout  time.Duration

	Neo4j  neo4jdb.Config
	OpenAI openai.Config
	Gemini gemini.Config
	Cache  cache.Config
	DB     db.Config
	Otel   observability.OtelConfig
}

func LoadConfig() Config {
	return Config{
		LogMode:          envutil.String("LOG_MODE", "development"),
		Port:             envutil.String("PORT", "8000"),
		CORSOrigins:      splitList(envutil.String("CORS_ORIGINS", "")),
		AnalyzerProvider: strings.ToLower(envutil.String("ANALYZER_PROVIDER", ProviderAuto)),
		ShutdownTimeout:  envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),

		Neo4j:  neo4jdb.ConfigFromEnv(),
		OpenAI: openai.ConfigFromEnv(),
		Gemini: gemini.ConfigFromEnv(),
		Cache:  cache.ConfigFromEnv(),
		DB:     db.ConfigFromEnv(),
		Otel:   observability.OtelConfigFromEnv(serviceName),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
