package planner

import (
	"context"
	"fmt"
	"text/template"

	"github.com/lance13c/qarun/internal/config"
	"github.com/lance13c/qarun/internal/llm"
	"github.com/lance13c/qarun/internal/locator"
	"github.com/lance13c/qarun/internal/logging"
	"github.com/lance13c/qarun/internal/testcase"
	"github.com/lance13c/qarun/internal/types"
)

// Options configures a Planner.
type Options struct {
	LocatorFilter  string // config.FilterAll or config.FilterRelevant
	Credentials    string // config.CredentialsAlways, Login or Never
	PromptTemplate string // optional template file redefining "batch" or "step"
	FailuresDir    string // where step-mode failure records go; empty disables them
	Cache          Cache  // optional
}

// Planner turns test cases and goals into action plans through the
// reasoning service. It never retries a call.
type Planner struct {
	client  llm.Client
	prompts *template.Template
	opts    Options
}

// New creates a planner.
func New(client llm.Client, opts Options) (*Planner, error) {
	prompts, err := loadPrompts(opts.PromptTemplate)
	if err != nil {
		return nil, err
	}
	if opts.LocatorFilter == "" {
		opts.LocatorFilter = config.FilterRelevant
	}
	if opts.Credentials == "" {
		opts.Credentials = config.CredentialsAlways
	}
	return &Planner{client: client, prompts: prompts, opts: opts}, nil
}

// PlanBatch synthesizes the full plan of a test case. Elements lacking an
// action are dropped; a response that is not a JSON array is an
// ErrMalformedOutput carrying the raw output.
func (p *Planner) PlanBatch(ctx context.Context, tc types.TestCase, catalog types.Catalog) (types.Plan, error) {
	prompt, err := render(p.prompts, batchTemplate, PromptData{
		Goal:     tc.Content,
		Locators: p.scope(catalog, tc.Content),
	})
	if err != nil {
		return nil, err
	}

	key := CacheKey(batchTemplate, prompt)
	if plan, ok := p.cached(ctx, key); ok {
		logging.Info("using cached plan for %s (%d steps)", tc.Name, len(plan))
		return plan, nil
	}

	raw, err := p.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("plan synthesis failed: %w", err)
	}
	logging.Debug("reasoning output for %s: %s", tc.Name, raw)

	plan, err := ParseBatch(raw)
	if err != nil {
		return nil, err
	}

	p.store(ctx, key, plan)
	return plan, nil
}

// ParseBatch decodes a batch-mode response.
func ParseBatch(raw string) (types.Plan, error) {
	v, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	elements, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: expected a JSON array of steps, got: %s", ErrMalformedOutput, raw)
	}

	plan := types.Plan{}
	for i, el := range elements {
		obj, ok := el.(map[string]interface{})
		if !ok || obj["action"] == nil {
			logging.Warn("dropping plan element %d without an action: %v", i+1, el)
			continue
		}
		step, err := StepFromObject(obj)
		if err != nil {
			logging.Warn("dropping plan element %d: %v", i+1, err)
			continue
		}
		plan = append(plan, step)
	}
	return plan, nil
}

// PlanGoal synthesizes the single next step of a goal against the current
// page's catalog. Any malformed or unrecognized response is fatal for the
// goal and leaves a failure record behind.
func (p *Planner) PlanGoal(ctx context.Context, goal string, creds testcase.Credentials, catalog types.Catalog) (types.ActionStep, error) {
	data := PromptData{
		Goal:     goal,
		Locators: p.scope(catalog, goal),
	}
	if p.injectCredentials(goal) {
		data.Username = creds.Username
		data.Password = creds.Password
	}

	prompt, err := render(p.prompts, stepTemplate, data)
	if err != nil {
		return types.ActionStep{}, err
	}

	key := CacheKey(stepTemplate, prompt)
	if plan, ok := p.cached(ctx, key); ok && len(plan) == 1 {
		logging.Info("using cached step for goal %q", goal)
		return plan[0], nil
	}

	raw, err := p.client.Complete(ctx, prompt)
	if err != nil {
		return types.ActionStep{}, fmt.Errorf("plan synthesis failed: %w", err)
	}
	logging.Debug("reasoning output for goal %q: %s", goal, raw)

	step, err := ParseStep(raw)
	if err != nil {
		if p.opts.FailuresDir != "" {
			path, werr := writeFailureRecord(p.opts.FailuresDir, FailureRecord{
				Goal:      goal,
				Prompt:    prompt,
				RawOutput: raw,
				Error:     err.Error(),
			})
			if werr != nil {
				logging.Warn("could not write failure record: %v", werr)
			} else {
				err = fmt.Errorf("%w (failure record: %s)", err, path)
			}
		}
		return types.ActionStep{}, err
	}

	p.store(ctx, key, types.Plan{step})
	return step, nil
}

// ParseStep decodes a step-mode response: one object or a one-element array.
func ParseStep(raw string) (types.ActionStep, error) {
	v, err := Decode(raw)
	if err != nil {
		return types.ActionStep{}, err
	}

	if arr, ok := v.([]interface{}); ok {
		if len(arr) != 1 {
			return types.ActionStep{}, fmt.Errorf("%w: expected one step, got %d", ErrMalformedOutput, len(arr))
		}
		v = arr[0]
	}

	obj, ok := v.(map[string]interface{})
	if !ok {
		return types.ActionStep{}, fmt.Errorf("%w: expected a JSON object, got: %s", ErrMalformedOutput, raw)
	}

	step, err := Normalize(obj)
	if err != nil {
		return types.ActionStep{}, err
	}
	if !step.Action.IsKnown() {
		return types.ActionStep{}, fmt.Errorf("%w: unknown action %q", ErrNormalization, step.Action)
	}
	return step, nil
}

func (p *Planner) scope(catalog types.Catalog, text string) types.Catalog {
	if p.opts.LocatorFilter == config.FilterAll {
		return catalog
	}
	return locator.Relevant(catalog, text)
}

func (p *Planner) injectCredentials(goal string) bool {
	switch p.opts.Credentials {
	case config.CredentialsNever:
		return false
	case config.CredentialsLogin:
		return testcase.IsLoginGoal(goal)
	default:
		return true
	}
}

func (p *Planner) cached(ctx context.Context, key string) (types.Plan, bool) {
	if p.opts.Cache == nil {
		return nil, false
	}
	plan, ok, err := p.opts.Cache.Get(ctx, key)
	if err != nil {
		logging.Warn("plan cache lookup failed: %v", err)
		return nil, false
	}
	return plan, ok
}

func (p *Planner) store(ctx context.Context, key string, plan types.Plan) {
	if p.opts.Cache == nil {
		return
	}
	if err := p.opts.Cache.Put(ctx, key, plan); err != nil {
		logging.Warn("plan cache store failed: %v", err)
	}
}
