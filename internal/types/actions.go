package types

// ActionKind tags an ActionStep.
type ActionKind string

const (
	ActionGoto         ActionKind = "goto"
	ActionFill         ActionKind = "fill"
	ActionClick        ActionKind = "click"
	ActionSelectOption ActionKind = "selectOption"
	ActionAssert       ActionKind = "assert"
	ActionDBQuery      ActionKind = "db_query"
	ActionAPIRequest   ActionKind = "api_request"
)

// KnownActions lists every action the engine can dispatch.
var KnownActions = []ActionKind{
	ActionGoto,
	ActionFill,
	ActionClick,
	ActionSelectOption,
	ActionAssert,
	ActionDBQuery,
	ActionAPIRequest,
}

// IsKnown reports whether k is a recognized action tag.
func (k ActionKind) IsKnown() bool {
	for _, known := range KnownActions {
		if k == known {
			return true
		}
	}
	return false
}

// ActionStep is one structured instruction of a plan. Only the fields relevant
// to Action are populated.
type ActionStep struct {
	Action ActionKind `json:"action"`

	// goto, api_request
	URL string `json:"url,omitempty"`

	// fill, click, selectOption, assert
	Selector string `json:"selector,omitempty"`
	Value    string `json:"value,omitempty"`
	Text     string `json:"text,omitempty"`
	Exists   *bool  `json:"exists,omitempty"`

	// db_query
	Query    string `json:"query,omitempty"`
	Database string `json:"database,omitempty"`

	// api_request
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    interface{}       `json:"body,omitempty"`
}

// Plan is an ordered sequence of steps.
type Plan []ActionStep
