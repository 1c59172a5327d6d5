package planner

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/lance13c/qarun/internal/types"
)

// Template names. A custom prompt file may redefine either of them.
const (
	batchTemplate = "batch"
	stepTemplate  = "step"
)

// PromptData is what the prompt templates render.
type PromptData struct {
	Goal     string
	Locators types.Catalog
	Username string
	Password string
	Actions  []types.ActionKind
}

const defaultPrompts = `
{{- define "rules" -}}
INSTRUCTIONS:
- For each step, use the selector (id, class, name, xpath, or css) from the provided locator JSON that best matches the field's purpose.
- Only use selectors present in the locator JSON and that are relevant to the described step.
- Match selectors by id, class, name, text, or locator value as appropriate.
- Do NOT invent, describe, or use any other format for selectors.
- Use the exact selector string (e.g., #username, [name="password"], .btn-primary, or an xpath).
- If you cannot find a selector for a step, SKIP that step.
- Supported actions: {{ .Actions | join ", " }}.
- "db_query" steps carry "query" and optionally "database"; "api_request" steps carry "url" and optionally "method", "headers" and "body".
- Keep the output concise and do not include unnecessary selectors.
{{- end }}

{{- define "locators" -}}
{{- if .Locators }}

Here are all available UI element locators for this application (as JSON):
{{ toPrettyJson .Locators }}
{{- end }}
{{- end }}

{{- define "credentials" -}}
{{- if or .Username .Password }}

Credentials to use when the step needs them:
{{- if .Username }}
- username: {{ .Username }}
{{- end }}
{{- if .Password }}
- password: {{ .Password }}
{{- end }}
{{- end }}
{{- end }}

{{- define "batch" -}}
You are an expert test automation assistant. Given a natural language test case, return a JSON array of steps for browser, database, and API testing.

{{ template "rules" . }}
- Your output MUST be a JSON array of objects, each with an 'action' property.

STRICT EXAMPLE:
[
  { "action": "goto", "url": "https://example.com" },
  { "action": "fill", "selector": "#username", "value": "user@example.com" },
  { "action": "fill", "selector": "#password", "value": "password123" },
  { "action": "click", "selector": "#submit-btn" },
  { "action": "assert", "selector": ".dashboard-welcome", "text": "Welcome to Dashboard" }
]

Test case: {{ .Goal | trim }}
{{- template "locators" . }}
{{- template "credentials" . }}
Return only the JSON array.
{{- end }}

{{- define "step" -}}
You are an expert test automation assistant. Given ONE instruction from a test case and the elements of the page currently open in the browser, return the single next step.

{{ template "rules" . }}
- Your output MUST be one JSON object with an 'action' property.

STRICT EXAMPLE:
{ "action": "click", "selector": "#submit-btn" }

Instruction: {{ .Goal | trim }}
{{- template "locators" . }}
{{- template "credentials" . }}
Return only the JSON object.
{{- end }}
`

// loadPrompts parses the built-in prompts, then the optional override file.
func loadPrompts(overridePath string) (*template.Template, error) {
	tmpl, err := template.New("prompts").Funcs(sprig.TxtFuncMap()).Parse(defaultPrompts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse built-in prompts: %w", err)
	}
	if overridePath == "" {
		return tmpl, nil
	}

	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt template: %w", err)
	}
	if _, err := tmpl.Parse(string(data)); err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", overridePath, err)
	}
	return tmpl, nil
}

func render(tmpl *template.Template, name string, data PromptData) (string, error) {
	if data.Actions == nil {
		data.Actions = types.KnownActions
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}
