package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/Super-Meta77/sefaria-backend/internal/platform/envutil"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/promptstyle"
)

// Client is the chat-completions surface used by the analyzer.
type Client interface {
	// CompleteJSON requests structured output validated against schema and returns the raw JSON text.
	CompleteJSON(ctx context.Context, system, user, schemaName string, schema any) (string, error)
}

type Config struct {
	APIKey             string
	BaseURL            string
	Model              string
	Temperature        float64
	DisableTemperature bool
	MaxTokens          int
	MaxRetries         int
	Timeout            time.Duration
	NoTempModels       string
	NoTempTTL          time.Duration
}

// ConfigFromEnv reads OPENAI_* variables. OPENAI_TEMPERATURE accepts "off".
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:       strings.TrimSpace(envutil.String("OPENAI_API_KEY", "")),
		BaseURL:      strings.TrimSpace(envutil.String("OPENAI_BASE_URL", "")),
		Model:        strings.TrimSpace(envutil.String("OPENAI_MODEL", "gpt-4o")),
		Temperature:  0.7,
		MaxTokens:    envutil.Int("OPENAI_MAX_TOKENS", 1500),
		MaxRetries:   envutil.Int("OPENAI_MAX_RETRIES", 2),
		Timeout:      envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 180*time.Second),
		NoTempModels: envutil.String("OPENAI_NO_TEMPERATURE_MODELS", ""),
		NoTempTTL:    envutil.Seconds("OPENAI_NO_TEMPERATURE_TTL_SECONDS", 24*time.Hour),
	}
	cfg.DisableTemperature = envutil.Bool("OPENAI_DISABLE_TEMPERATURE", false)
	switch v := strings.ToLower(strings.TrimSpace(envutil.String("OPENAI_TEMPERATURE", ""))); v {
	case "":
	case "off", "none", "nil", "false":
		cfg.DisableTemperature = true
	default:
		cfg.Temperature = envutil.Float("OPENAI_TEMPERATURE", cfg.Temperature)
	}
	return cfg
}

// Configured reports whether an API key is present. Placeholder keys from sample
// .env files count as missing.
func (c Config) Configured() bool {
	k := strings.TrimSpace(c.APIKey)
	return k != "" && k != "sk-your-openai-api-key-here"
}

type client struct {
	log     *logger.Logger
	api     oai.Client
	model   string
	temp    float64
	noTemp  bool
	maxToks int

	noTempModels   map[string]bool
	noTempPrefixes []string

	noTempMu   sync.RWMutex
	noTempSeen map[string]time.Time
	noTempTTL  time.Duration
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !cfg.Configured() {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	models, prefixes := parseNoTempModelRules(cfg.NoTempModels)
	return &client{
		log:            log.With("service", "OpenAIClient"),
		api:            oai.NewClient(opts...),
		model:          strings.TrimSpace(cfg.Model),
		temp:           cfg.Temperature,
		noTemp:         cfg.DisableTemperature,
		maxToks:        cfg.MaxTokens,
		noTempModels:   models,
		noTempPrefixes: prefixes,
		noTempSeen:     map[string]time.Time{},
		noTempTTL:      cfg.NoTempTTL,
	}, nil
}

func NewClientFromEnv(log *logger.Logger) (Client, error) {
	return NewClient(log, ConfigFromEnv())
}

func (c *client) CompleteJSON(ctx context.Context, system, user, schemaName string, schema any) (string, error) {
	if schemaName == "" {
		return "", errors.New("schemaName required")
	}
	if schema == nil {
		return "", errors.New("schema required")
	}
	system = promptstyle.ApplySystem(system, "json")

	params := oai.ChatCompletionNewParams{
		Model: oai.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(system),
			oai.UserMessage(user),
		},
		ResponseFormat: oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &oai.ResponseFormatJSONSchemaParam{
				JSONSchema: oai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName,
					Schema: schema,
					Strict: oai.Bool(true),
				},
			},
		},
	}
	if c.maxToks > 0 {
		params.MaxCompletionTokens = oai.Int(int64(c.maxToks))
	}

	withTemp := !c.noTemp && !c.modelIsNoTemp(c.model)
	if withTemp {
		params.Temperature = oai.Float(c.temp)
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil && withTemp && isUnsupportedTemperatureMessage(err.Error()) {
		c.noteNoTempModel(c.model)
		c.log.Warn("model rejected temperature; retrying without it", "model", c.model)
		params.Temperature = oai.ChatCompletionNewParams{}.Temperature
		resp, err = c.api.Chat.Completions.New(ctx, params)
	}
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response from model")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", choice.Message.Refusal)
	}
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty response from model (finish_reason: %s)", choice.FinishReason)
	}

	c.log.Debug("openai completion",
		"model", c.model,
		"schema", schemaName,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func normalizeModelKey(m string) string {
	return strings.ToLower(strings.TrimSpace(m))
}

// OPENAI_NO_TEMPERATURE_MODELS: comma-separated list, supports "*" suffix for prefix match.
// Examples:
// - "o1-* , o3-*"
// - "gpt-5, gpt-5-chat-latest"
func parseNoTempModelRules(raw string) (map[string]bool, []string) {
	m := map[string]bool{}
	var prefixes []string
	for _, part := range strings.Split(raw, ",") {
		s := normalizeModelKey(part)
		if s == "" {
			continue
		}
		if strings.HasSuffix(s, "*") {
			p := strings.TrimSuffix(s, "*")
			p = strings.TrimSpace(strings.TrimRight(p, "-_./:"))
			if p != "" {
				prefixes = append(prefixes, p)
			}
			continue
		}
		m[s] = true
	}
	return m, prefixes
}

func (c *client) modelIsNoTemp(model string) bool {
	m := normalizeModelKey(model)
	if m == "" {
		return false
	}
	if c.noTempModels[m] {
		return true
	}
	for _, p := range c.noTempPrefixes {
		if strings.HasPrefix(m, p) {
			return true
		}
	}

	// Learned at runtime.
	c.noTempMu.RLock()
	ts, ok := c.noTempSeen[m]
	ttl := c.noTempTTL
	c.noTempMu.RUnlock()
	if !ok {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return time.Since(ts) < ttl
}

func (c *client) noteNoTempModel(model string) {
	m := normalizeModelKey(model)
	if m == "" {
		return
	}
	c.noTempMu.Lock()
	c.noTempSeen[m] = time.Now().UTC()
	c.noTempMu.Unlock()
}

func isUnsupportedTemperatureMessage(s string) bool {
	msg := strings.ToLower(strings.TrimSpace(s))
	if !strings.Contains(msg, "temperature") {
		return false
	}
	for _, marker := range []string{
		"unsupported parameter",
		"unknown parameter",
		"unrecognized parameter",
		"not supported",
		"does not support",
		"only the default",
		"unsupported_value",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
