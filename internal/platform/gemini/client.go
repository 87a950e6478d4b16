package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Super-Meta77/sefaria-backend/internal/platform/envutil"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
	"github.com/Super-Meta77/sefaria-backend/internal/platform/promptstyle"
)

const defaultModel = "gemini-1.5-flash"

type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int32
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:      strings.TrimSpace(envutil.String("GEMINI_API_KEY", "")),
		Model:       strings.TrimSpace(envutil.String("GEMINI_MODEL", defaultModel)),
		Temperature: float32(envutil.Float("GEMINI_TEMPERATURE", 0.7)),
		MaxTokens:   int32(envutil.Int("GEMINI_MAX_TOKENS", 2048)),
	}
}

// Client is a JSON-mode Gemini completer. It owns the underlying connection;
// call Close at shutdown.
type Client struct {
	log   *logger.Logger
	api   *genai.Client
	model string
	temp  float32
	toks  int32
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	api, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{
		log:   log.With("service", "GeminiClient"),
		api:   api,
		model: cfg.Model,
		temp:  cfg.Temperature,
		toks:  cfg.MaxTokens,
	}, nil
}

// CompleteJSON runs the prompt in JSON response mode. Gemini takes a narrower schema
// dialect than JSON Schema, so the schema is given to the model as an instruction.
func (c *Client) CompleteJSON(ctx context.Context, system, user, schemaName string, schema any) (string, error) {
	model := c.api.GenerativeModel(c.model)
	model.SetTemperature(c.temp)
	if c.toks > 0 {
		model.SetMaxOutputTokens(c.toks)
	}
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemWithSchema(system, schemaName, schema))}}

	resp, err := model.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", fmt.Errorf("gemini error: %w", err)
	}
	out := textFromResponse(resp)
	if out == "" {
		return "", fmt.Errorf("no response from Gemini")
	}
	return out, nil
}

func (c *Client) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

func systemWithSchema(system, schemaName string, schema any) string {
	system = promptstyle.ApplySystem(system, "json")
	if schema == nil {
		return system
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return system
	}
	return system + "\n\nRespond with a single JSON object named " + schemaName + " matching this JSON Schema:\n" + string(b)
}

func textFromResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
