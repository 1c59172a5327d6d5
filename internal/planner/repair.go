package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MaxReparseAttempts bounds how many times a response that decodes to a JSON
// string is decoded again. Bridges that print json.dumps of the model text
// produce one such layer.
const MaxReparseAttempts = 3

var (
	// ErrMalformedOutput means the response never decoded to a usable plan.
	ErrMalformedOutput = errors.New("plan synthesis malformed output")

	// ErrNormalization means a step object had no action and did not match a
	// recognized shorthand form.
	ErrNormalization = errors.New("plan step normalization failed")
)

// Decode parses raw as JSON and keeps decoding while the value is a string,
// up to MaxReparseAttempts times. The result is never a string.
func Decode(raw string) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(stripFence(raw)), &v); err != nil {
		return nil, fmt.Errorf("%w: output not valid JSON: %s", ErrMalformedOutput, raw)
	}

	for attempts := 0; attempts < MaxReparseAttempts; attempts++ {
		s, ok := v.(string)
		if !ok {
			break
		}
		if err := json.Unmarshal([]byte(stripFence(s)), &v); err != nil {
			return nil, fmt.Errorf("%w: output not valid JSON: %s", ErrMalformedOutput, raw)
		}
	}

	if _, ok := v.(string); ok {
		return nil, fmt.Errorf("%w: still a string after %d re-parses: %s", ErrMalformedOutput, MaxReparseAttempts, raw)
	}
	return v, nil
}

// stripFence unwraps a ```json fenced block, which chat models like to emit.
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	t = strings.TrimPrefix(t, "json")
	if end := strings.LastIndex(t, "```"); end != -1 {
		t = t[:end]
	}
	return strings.TrimSpace(t)
}
