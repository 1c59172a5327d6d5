package report

import (
	"fmt"
	"html/template"
	"os"
	"strings"

	"github.com/lance13c/qarun/internal/types"
)

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"upper": func(s types.StepStatus) string { return strings.ToUpper(string(s)) },
	"slash": func(s string) string { return strings.ReplaceAll(s, `\`, "/") },
}).Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; }
    .testcase { margin-bottom: 40px; }
    .step { margin-bottom: 20px; }
    .pass { color: green; }
    .fail { color: red; }
    .pending { color: gray; }
    img { max-width: 400px; border: 1px solid #ccc; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>Generated: {{.Report.GeneratedAt.Format "2006-01-02 15:04:05"}} &middot; Run {{.Report.RunID}} &middot; {{.Report.Passed}} passed, {{.Report.Failed}} failed</p>
{{- range .Report.Results}}
  <div class="testcase">
    <h2>{{.Name}} - {{if .Pass}}<span class="pass">PASS</span>{{else}}<span class="fail">FAIL</span>{{end}}</h2>
    {{- if .Error}}
    <p class="fail">Error: {{.Error}}</p>
    {{- end}}
    <ol>
    {{- range .Steps}}
      <li class="step">
        {{- if .Goal}}<strong>Goal:</strong> {{.Goal}}<br/>{{end}}
        {{- if .Action}}
        <strong>Action:</strong> {{.Action}}<br/>
        {{- else}}
        <strong>Action:</strong> <em>none synthesized</em><br/>
        {{- end}}
        <strong>Status:</strong> <span class="{{.Status}}">{{upper .Status}}</span><br/>
        {{- if .Error}}
        <strong>Error:</strong> {{.Error}}<br/>
        {{- end}}
        {{- if .Screenshot}}
        <img src="{{slash .Screenshot}}" alt="Step Screenshot"/><br/>
        {{- end}}
      </li>
    {{- end}}
    </ol>
  </div>
{{- end}}
</body>
</html>
`))

type htmlData struct {
	Title  string
	Report *types.Report
}

// WriteHTML writes a self-contained page listing every test case and step.
// Screenshot paths are relative to the reports directory, which is where the
// page is written.
func WriteHTML(path string, rep *types.Report, title string) error {
	if title == "" {
		title = "Test Automation Report"
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create HTML report: %w", err)
	}
	defer f.Close()

	if err := htmlTemplate.Execute(f, htmlData{Title: title, Report: rep}); err != nil {
		return fmt.Errorf("failed to render HTML report: %w", err)
	}
	return nil
}
