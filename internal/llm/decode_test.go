package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON_Plain(t *testing.T) {
	var out struct {
		Feedback string `json:"feedback"`
	}
	require.NoError(t, DecodeJSON(`{"feedback": "tighten the hook"}`, &out))
	assert.Equal(t, "tighten the hook", out.Feedback)
}

func TestDecodeJSON_Fenced(t *testing.T) {
	raw := "```json\n{\"scores\": {\"hook\": 7.5}}\n```"

	var out struct {
		Scores map[string]float64 `json:"scores"`
	}
	require.NoError(t, DecodeJSON(raw, &out))
	assert.Equal(t, 7.5, out.Scores["hook"])
}

func TestDecodeJSON_FencedWithoutLanguageTag(t *testing.T) {
	raw := "```\n{\"a\": 1}\n```"

	var out map[string]int
	require.NoError(t, DecodeJSON(raw, &out))
	assert.Equal(t, 1, out["a"])
}

func TestDecodeJSON_SurroundingProse(t *testing.T) {
	raw := "Here is the critique you asked for:\n{\"feedback\": \"ok\"}\nLet me know if you need more."

	var out struct {
		Feedback string `json:"feedback"`
	}
	require.NoError(t, DecodeJSON(raw, &out))
	assert.Equal(t, "ok", out.Feedback)
}

func TestDecodeJSON_Unparseable(t *testing.T) {
	var out map[string]any
	for _, raw := range []string{"", "not json at all", "{broken", "```json\n```"} {
		err := DecodeJSON(raw, &out)
		require.Error(t, err, "input %q", raw)
		assert.ErrorIs(t, err, ErrUnparseable)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  ```json\n{\"a\":1}\n```  ", "{\"a\":1}"},
		{"```{\"a\":1}```", "{\"a\":1}"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFences(tt.in), "input %q", tt.in)
	}
}
