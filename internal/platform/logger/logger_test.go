package logger

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"neo4j_password", "hunter2",
		"openai_api_key", "sk-abc",
		"ref", "Berakhot 2a",
	})
	assert.Equal(t, []interface{}{
		"neo4j_password", "[REDACTED]",
		"openai_api_key", "[REDACTED]",
		"ref", "Berakhot 2a",
	}, out)
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"tractate", "Shabbat", "dangling"})
	assert.Len(t, out, 3)
	assert.Equal(t, "dangling", out[2])
}

func TestSanitizeKVsTruncatesLongText(t *testing.T) {
	long := strings.Repeat("א", defaultMaxTextRunes+10)
	out := sanitizeKVs([]interface{}{"text", long, "ref", long})

	assert.True(t, strings.HasSuffix(out[1].(string), fmt.Sprintf("(%d chars)", defaultMaxTextRunes+10)))
	assert.Equal(t, long, out[3])
	assert.Equal(t, 5, truncateValue(5))
}

func TestNewTestModeIsNop(t *testing.T) {
	log, err := New("test")
	assert.NoError(t, err)
	log.Info("discarded", "k", "v")
	log.With("service", "x").Warn("discarded")
}
