package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lance13c/qarun/internal/types"
)

// shorthandSiblings lists, for each primitive UI action, the keys allowed
// next to it when the action is written as the object key itself, e.g.
// {"fill": "#email", "value": "a@b.c"}.
var shorthandSiblings = map[types.ActionKind][]string{
	types.ActionGoto:   nil,
	types.ActionFill:   {"value"},
	types.ActionClick:  {"text"},
	types.ActionAssert: {"text"},
}

// Normalize turns one decoded plan element into a step. Objects that carry
// "action" are decoded as-is. Otherwise the object must be a shorthand form:
// exactly one primitive action key plus that action's permitted siblings.
// Anything else is an ErrNormalization.
func Normalize(obj map[string]interface{}) (types.ActionStep, error) {
	if _, ok := obj["action"]; ok {
		return StepFromObject(obj)
	}

	var kind types.ActionKind
	for key := range obj {
		k := types.ActionKind(key)
		if _, ok := shorthandSiblings[k]; !ok {
			continue
		}
		if kind != "" {
			return types.ActionStep{}, fmt.Errorf("%w: more than one action key in %s", ErrNormalization, describe(obj))
		}
		kind = k
	}
	if kind == "" {
		return types.ActionStep{}, fmt.Errorf("%w: no action in %s", ErrNormalization, describe(obj))
	}

	allowed := map[string]bool{string(kind): true}
	for _, s := range shorthandSiblings[kind] {
		allowed[s] = true
	}
	for key := range obj {
		if !allowed[key] {
			return types.ActionStep{}, fmt.Errorf("%w: unexpected key %q next to %s in %s", ErrNormalization, key, kind, describe(obj))
		}
	}

	target, ok := obj[string(kind)].(string)
	if !ok || target == "" {
		return types.ActionStep{}, fmt.Errorf("%w: %s needs a string value in %s", ErrNormalization, kind, describe(obj))
	}

	step := types.ActionStep{Action: kind}
	switch kind {
	case types.ActionGoto:
		step.URL = target
	case types.ActionFill:
		step.Selector = target
		step.Value = asString(obj["value"])
	default:
		step.Selector = target
		step.Text = asString(obj["text"])
	}
	return step, nil
}

// StepFromObject decodes an element carrying an "action" key. Scalar fields
// tolerate numbers and booleans where strings are expected.
func StepFromObject(obj map[string]interface{}) (types.ActionStep, error) {
	action, ok := obj["action"].(string)
	if !ok || action == "" {
		return types.ActionStep{}, fmt.Errorf("%w: action must be a non-empty string in %s", ErrNormalization, describe(obj))
	}

	step := types.ActionStep{
		Action:   types.ActionKind(action),
		URL:      asString(obj["url"]),
		Selector: asString(obj["selector"]),
		Value:    asString(obj["value"]),
		Text:     asString(obj["text"]),
		Query:    asString(obj["query"]),
		Database: asString(obj["database"]),
		Method:   asString(obj["method"]),
		Body:     obj["body"],
	}
	if b, ok := obj["exists"].(bool); ok {
		step.Exists = &b
	}
	if h, ok := obj["headers"].(map[string]interface{}); ok && len(h) > 0 {
		step.Headers = make(map[string]string, len(h))
		for k, v := range h {
			step.Headers[k] = asString(v)
		}
	}
	return step, nil
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func describe(obj map[string]interface{}) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "{" + strings.Join(keys, ", ") + "}"
}
