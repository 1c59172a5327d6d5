package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/lance13c/qarun/internal/browser"
	"github.com/lance13c/qarun/internal/httpcall"
	"github.com/lance13c/qarun/internal/types"
)

// dispatch performs step against session, storing any evidence in res.
func (e *Engine) dispatch(ctx context.Context, session browser.Session, step types.ActionStep, res *types.StepResult) error {
	switch step.Action {
	case types.ActionGoto:
		return session.Goto(ctx, step.URL)

	case types.ActionFill:
		return session.Fill(ctx, step.Selector, step.Value)

	case types.ActionClick:
		if step.Text != "" {
			if err := clickByText(ctx, session, step.Selector, step.Text); err != nil {
				return err
			}
		} else if err := session.Click(ctx, step.Selector); err != nil {
			return err
		}
		return session.WaitForLoad(ctx)

	case types.ActionSelectOption:
		return session.SelectOption(ctx, step.Selector, step.Value)

	case types.ActionAssert:
		return assertStep(ctx, session, step)

	case types.ActionDBQuery:
		if e.db == nil {
			return fmt.Errorf("db_query: no database configured")
		}
		rows, err := e.db.Query(ctx, step.Query, step.Database)
		if err != nil {
			return err
		}
		if rows == nil {
			rows = []map[string]interface{}{}
		}
		res.DBResult = rows
		return nil

	case types.ActionAPIRequest:
		resp, err := e.api.Do(ctx, httpcall.Request{
			Method:  step.Method,
			URL:     step.URL,
			Headers: step.Headers,
			Body:    step.Body,
		})
		if err != nil {
			return err
		}
		res.APIResponse = &types.APIResponse{Status: resp.Status, Data: resp.Data}
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, step.Action)
	}
}

// clickByText clicks the first element matching selector whose trimmed text
// equals text, ignoring case.
func clickByText(ctx context.Context, session browser.Session, selector, text string) error {
	elements, err := session.QueryAll(ctx, selector)
	if err != nil {
		return err
	}

	want := strings.TrimSpace(text)
	for _, el := range elements {
		got, err := el.TextContent(ctx)
		if err != nil {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(got), want) {
			return el.Click(ctx)
		}
	}
	return fmt.Errorf("element with selector %s and text %q not found", selector, text)
}

func assertStep(ctx context.Context, session browser.Session, step types.ActionStep) error {
	switch {
	case step.Text != "":
		if err := session.WaitVisible(ctx, step.Selector); err != nil {
			return err
		}
		content, err := session.TextContent(ctx, step.Selector)
		if err != nil {
			return err
		}
		if !strings.Contains(content, step.Text) {
			return fmt.Errorf("text %q not found in element %s", step.Text, step.Selector)
		}
	case step.Exists != nil && *step.Exists:
		return session.WaitVisible(ctx, step.Selector)
	case step.Exists != nil && !*step.Exists:
		return session.WaitHidden(ctx, step.Selector)
	}
	return nil
}
