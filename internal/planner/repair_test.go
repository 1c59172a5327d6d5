package planner

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wrap string-encodes the JSON text of v the given number of times.
func wrap(t *testing.T, v interface{}, levels int) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	s := string(data)
	for i := 0; i < levels; i++ {
		b, err := json.Marshal(s)
		require.NoError(t, err)
		s = string(b)
	}
	return s
}

func TestDecode_RecoversUpToMaxReparseAttempts(t *testing.T) {
	plan := []interface{}{map[string]interface{}{"action": "goto", "url": "https://example.com"}}

	for levels := 0; levels <= MaxReparseAttempts; levels++ {
		got, err := Decode(wrap(t, plan, levels))
		require.NoError(t, err, "levels=%d", levels)
		assert.Equal(t, plan, got, "levels=%d", levels)
	}
}

func TestDecode_FailsBeyondMaxReparseAttempts(t *testing.T) {
	plan := []interface{}{map[string]interface{}{"action": "goto"}}
	raw := wrap(t, plan, MaxReparseAttempts+1)

	_, err := Decode(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
	assert.Contains(t, err.Error(), raw)
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode("Sure! Here are your steps.")
	assert.True(t, errors.Is(err, ErrMalformedOutput))
	assert.Contains(t, err.Error(), "Sure! Here are your steps.")

	_, err = Decode(`"[not json"`)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
}

func TestDecode_PlainStringIsMalformed(t *testing.T) {
	_, err := Decode(`"just words"`)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
}

func TestDecode_FencedBlock(t *testing.T) {
	got, err := Decode("```json\n[{\"action\":\"click\",\"selector\":\"#go\"}]\n```")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	inner, err := json.Marshal("```json\n{\"action\":\"click\"}\n```")
	require.NoError(t, err)
	got, err = Decode(string(inner))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"action": "click"}, got)
}
