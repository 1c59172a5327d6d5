package planner

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lance13c/qarun/internal/config"
	"github.com/lance13c/qarun/internal/llm"
	"github.com/lance13c/qarun/internal/testcase"
	"github.com/lance13c/qarun/internal/types"
)

var loginCatalog = types.Catalog{
	{ID: "username"},
	{Name: "password"},
	{Class: "btn btn-primary", Text: "Sign in"},
	{ID: "unrelated-footer"},
}

func newPlanner(t *testing.T, client llm.Client, opts Options) *Planner {
	t.Helper()
	p, err := New(client, opts)
	require.NoError(t, err)
	return p
}

func TestPlanBatch_GotoOnly(t *testing.T) {
	mock := llm.NewMockClient(`[{"action":"goto","url":"https://example.com"}]`)
	p := newPlanner(t, mock, Options{})

	plan, err := p.PlanBatch(context.Background(), types.TestCase{Name: "home.txt", Content: "navigate to https://example.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, types.Plan{{Action: types.ActionGoto, URL: "https://example.com"}}, plan)

	prompt := mock.Prompts()[0]
	assert.Contains(t, prompt, "Test case: navigate to https://example.com")
	assert.Contains(t, prompt, "Return only the JSON array.")
	assert.NotContains(t, prompt, "available UI element locators")
}

func TestPlanBatch_DoublyEncodedOutput(t *testing.T) {
	inner := `[{"action":"fill","selector":"username","value":"admin"}]`
	raw, err := json.Marshal(inner)
	require.NoError(t, err)

	p := newPlanner(t, llm.NewMockClient(string(raw)), Options{})
	plan, err := p.PlanBatch(context.Background(), types.TestCase{Name: "x", Content: "fill username"}, nil)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, "username", plan[0].Selector)
}

func TestPlanBatch_RelevantLocatorsOnly(t *testing.T) {
	mock := llm.NewMockClient(`[]`)
	p := newPlanner(t, mock, Options{LocatorFilter: config.FilterRelevant})

	_, err := p.PlanBatch(context.Background(), types.TestCase{
		Name:    "login.txt",
		Content: "Enter username and password then press Sign in",
	}, loginCatalog)
	require.NoError(t, err)

	prompt := mock.Prompts()[0]
	assert.Contains(t, prompt, `"id": "username"`)
	assert.Contains(t, prompt, `"name": "password"`)
	assert.Contains(t, prompt, `"text": "Sign in"`)
	assert.NotContains(t, prompt, "unrelated-footer")
}

func TestPlanBatch_AllLocators(t *testing.T) {
	mock := llm.NewMockClient(`[]`)
	p := newPlanner(t, mock, Options{LocatorFilter: config.FilterAll})

	_, err := p.PlanBatch(context.Background(), types.TestCase{Name: "x", Content: "nothing matches"}, loginCatalog)
	require.NoError(t, err)
	assert.Contains(t, mock.Prompts()[0], "unrelated-footer")
}

func TestPlanBatch_DropsElementsWithoutAction(t *testing.T) {
	raw := `[{"action":"goto","url":"https://a"},{"selector":"#x"},"junk",{"fill":"#y","value":"v"},{"action":"teleport"}]`
	p := newPlanner(t, llm.NewMockClient(raw), Options{})

	plan, err := p.PlanBatch(context.Background(), types.TestCase{Name: "x", Content: "x"}, nil)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, types.ActionGoto, plan[0].Action)
	// unknown actions survive parsing and fail at dispatch
	assert.Equal(t, types.ActionKind("teleport"), plan[1].Action)
}

func TestPlanBatch_MalformedEmbedsRawOutput(t *testing.T) {
	raw := `I could not find any selectors, sorry.`
	p := newPlanner(t, llm.NewMockClient(raw), Options{FailuresDir: t.TempDir()})

	_, err := p.PlanBatch(context.Background(), types.TestCase{Name: "x", Content: "x"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
	assert.Contains(t, err.Error(), raw)
}

func TestPlanBatch_ObjectIsMalformed(t *testing.T) {
	p := newPlanner(t, llm.NewMockClient(`{"action":"goto","url":"https://a"}`), Options{})

	_, err := p.PlanBatch(context.Background(), types.TestCase{Name: "x", Content: "x"}, nil)
	assert.True(t, errors.Is(err, ErrMalformedOutput))
}

func TestPlanBatch_ServiceFailure(t *testing.T) {
	mock := llm.NewMockClient()
	p := newPlanner(t, mock, Options{})

	_, err := p.PlanBatch(context.Background(), types.TestCase{Name: "x", Content: "x"}, nil)
	assert.True(t, errors.Is(err, llm.ErrProcessFailed))
	assert.Equal(t, 1, mock.Calls(), "no retries against the reasoning service")
}

func TestPlanGoal(t *testing.T) {
	mock := llm.NewMockClient(`[{"click":"btn btn-primary","text":"Sign in"}]`)
	p := newPlanner(t, mock, Options{})

	step, err := p.PlanGoal(context.Background(), "Press Sign in", testcase.Credentials{}, loginCatalog)
	require.NoError(t, err)
	assert.Equal(t, types.ActionStep{Action: types.ActionClick, Selector: "btn btn-primary", Text: "Sign in"}, step)
	assert.Contains(t, mock.Prompts()[0], "Instruction: Press Sign in")
	assert.Contains(t, mock.Prompts()[0], "Return only the JSON object.")
}

func TestPlanGoal_MalformedWritesFailureRecord(t *testing.T) {
	dir := t.TempDir()
	raw := `[{"action":"goto"},{"action":"click"}]`
	p := newPlanner(t, llm.NewMockClient(raw), Options{FailuresDir: dir})

	_, err := p.PlanGoal(context.Background(), "open the app", testcase.Credentials{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedOutput))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)
	var rec FailureRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "open the app", rec.Goal)
	assert.Equal(t, raw, rec.RawOutput)
	assert.Contains(t, rec.Prompt, "Instruction: open the app")
	assert.Equal(t, rec.ID+".json", files[0].Name())
	assert.Contains(t, err.Error(), files[0].Name())
}

func TestPlanGoal_UnrecognizedIsFatal(t *testing.T) {
	p := newPlanner(t, llm.NewMockClient(`{"hover":"#menu"}`), Options{})
	_, err := p.PlanGoal(context.Background(), "hover the menu", testcase.Credentials{}, nil)
	assert.True(t, errors.Is(err, ErrNormalization))

	p = newPlanner(t, llm.NewMockClient(`{"action":"hover","selector":"#menu"}`), Options{})
	_, err = p.PlanGoal(context.Background(), "hover the menu", testcase.Credentials{}, nil)
	assert.True(t, errors.Is(err, ErrNormalization))
}

func TestPlanGoal_CredentialPolicies(t *testing.T) {
	creds := testcase.Credentials{Username: "admin", Password: "s3cret"}
	reply := `{"action":"goto","url":"https://a"}`

	tests := []struct {
		policy    string
		goal      string
		wantCreds bool
	}{
		{config.CredentialsAlways, "open the reports page", true},
		{config.CredentialsLogin, "open the reports page", false},
		{config.CredentialsLogin, "log in with the admin account", true},
		{config.CredentialsNever, "log in with the admin account", false},
	}

	for _, tt := range tests {
		t.Run(tt.policy+"/"+tt.goal, func(t *testing.T) {
			mock := llm.NewMockClient(reply)
			p := newPlanner(t, mock, Options{Credentials: tt.policy})

			_, err := p.PlanGoal(context.Background(), tt.goal, creds, nil)
			require.NoError(t, err)

			prompt := mock.Prompts()[0]
			if tt.wantCreds {
				assert.Contains(t, prompt, "- username: admin")
				assert.Contains(t, prompt, "- password: s3cret")
			} else {
				assert.NotContains(t, prompt, "s3cret")
			}
		})
	}
}

func TestPlanner_CustomPromptTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.tmpl")
	require.NoError(t, os.WriteFile(path, []byte(`{{ define "batch" }}CUSTOM {{ .Goal | upper }}{{ end }}`), 0644))

	mock := llm.NewMockClient(`[]`)
	p := newPlanner(t, mock, Options{PromptTemplate: path})

	_, err := p.PlanBatch(context.Background(), types.TestCase{Name: "x", Content: "open app"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "CUSTOM OPEN APP", mock.Prompts()[0])
}

func TestPlanner_RedisCache(t *testing.T) {
	m, err := miniredis.Run()
	require.NoError(t, err)
	defer m.Close()

	cache := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: m.Addr()}), time.Hour)
	defer cache.Close()

	mock := llm.NewMockClient(`[{"action":"goto","url":"https://example.com"}]`)
	p := newPlanner(t, mock, Options{Cache: cache})
	tc := types.TestCase{Name: "home.txt", Content: "navigate to https://example.com"}

	first, err := p.PlanBatch(context.Background(), tc, nil)
	require.NoError(t, err)
	second, err := p.PlanBatch(context.Background(), tc, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.Calls())
	assert.Len(t, m.Keys(), 1)
	assert.True(t, m.TTL(m.Keys()[0]) > 0)
}

func TestPlanner_CacheSkipsFailures(t *testing.T) {
	m, err := miniredis.Run()
	require.NoError(t, err)
	defer m.Close()

	cache := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: m.Addr()}), time.Hour)
	p := newPlanner(t, llm.NewMockClient(`not json`), Options{Cache: cache})

	_, err = p.PlanBatch(context.Background(), types.TestCase{Name: "x", Content: "x"}, nil)
	require.Error(t, err)
	assert.Empty(t, m.Keys())
}
