package types

import "time"

// TestCase is a named natural-language description of a flow to validate.
type TestCase struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// LocatorEntry describes one observed or declared UI element.
type LocatorEntry struct {
	ID          string `json:"id,omitempty"`
	Class       string `json:"class,omitempty"`
	Name        string `json:"name,omitempty"`
	XPath       string `json:"xpath,omitempty"`
	Text        string `json:"text,omitempty"`
	Type        string `json:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Locator     string `json:"locator,omitempty"`
}

// IsEmpty reports whether no field is set.
func (e LocatorEntry) IsEmpty() bool {
	return e == LocatorEntry{}
}

// Catalog is an ordered collection of locator entries for one page or test case.
type Catalog []LocatorEntry

// StepStatus is the outcome of a step.
type StepStatus string

const (
	StatusPending StepStatus = "pending"
	StatusPass    StepStatus = "pass"
	StatusFail    StepStatus = "fail"
)

// APIResponse is what an api_request step records.
type APIResponse struct {
	Status int         `json:"status"`
	Data   interface{} `json:"data"`
}

// StepResult is the recorded evidence of one executed step.
type StepResult struct {
	Step        int                      `json:"step"`
	Action      string                   `json:"action"`
	Status      StepStatus               `json:"status"`
	Error       string                   `json:"error,omitempty"`
	Screenshot  string                   `json:"screenshot,omitempty"`
	DBResult    []map[string]interface{} `json:"dbResult,omitzero"`
	APIResponse *APIResponse             `json:"apiResponse,omitempty"`
	Goal        string                   `json:"goal,omitempty"`
}

// Failed reports whether the step failed.
func (r StepResult) Failed() bool {
	return r.Status == StatusFail
}

// TestResult aggregates a test case run. Steps is nil when the test case failed
// before execution began.
type TestResult struct {
	Name       string       `json:"name"`
	Pass       bool         `json:"pass"`
	Steps      []StepResult `json:"steps"`
	Error      string       `json:"error,omitempty"`
	DurationMs int64        `json:"durationMs,omitempty"`
}

// Report is the write-once output of one orchestrator run.
type Report struct {
	RunID       string       `json:"runId"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Results     []TestResult `json:"results"`
}

// Passed counts passing results.
func (r *Report) Passed() int {
	n := 0
	for _, res := range r.Results {
		if res.Pass {
			n++
		}
	}
	return n
}

// Failed counts failing results.
func (r *Report) Failed() int {
	return len(r.Results) - r.Passed()
}
