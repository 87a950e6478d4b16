package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Super-Meta77/sefaria-backend/internal/platform/logger"
)

func TestParseHeaders(t *testing.T) {
	assert.Nil(t, parseHeaders(""))
	assert.Nil(t, parseHeaders("nokey, =v, k="))
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y"}, parseHeaders(" a=1 ,b=x=y"))
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 1.0, clampRatio(3))
	assert.Equal(t, 0.25, clampRatio(0.25))
}

func TestOtelConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLER_RATIO", "2")
	t.Setenv("OTEL_SERVICE_NAME", "")
	cfg := OtelConfigFromEnv("sefaria-api")
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.Equal(t, "sefaria-api", cfg.ServiceName)
}

func TestInitOTelDisabledIsNoop(t *testing.T) {
	shutdown := InitOTel(context.Background(), logger.Nop(), OtelConfig{})
	assert.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
