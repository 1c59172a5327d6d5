package browsertest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_NavigatesOnClick(t *testing.T) {
	d := NewDriver(map[string]*Page{
		"http://app/login": {Elements: []*Element{
			{Selectors: []string{"#submit", "button"}, Text: "Sign in", Navigate: "http://app/home"},
		}},
		"http://app/home": {Elements: []*Element{{Selectors: []string{"h1"}, Text: "Welcome"}}},
	})
	ctx := context.Background()

	s, err := d.NewSession(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Goto(ctx, "http://app/login"))
	require.NoError(t, s.Click(ctx, "#submit"))

	text, err := s.TextContent(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", text)

	fake := d.Sessions()[0]
	assert.Equal(t, "http://app/home", fake.URL())
	assert.Equal(t, []string{"goto http://app/login", `click #submit "Sign in"`}, fake.Log())
}

func TestSession_WaitStates(t *testing.T) {
	d := NewDriver(map[string]*Page{
		"u": {Elements: []*Element{
			{Selectors: []string{"#shown"}},
			{Selectors: []string{"#hidden"}, Hidden: true},
			{Selectors: []string{"#disabled"}, Disabled: true},
		}},
	})
	ctx := context.Background()
	s, err := d.NewSession(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Goto(ctx, "u"))

	assert.NoError(t, s.WaitVisible(ctx, "#shown"))
	assert.Error(t, s.WaitVisible(ctx, "#hidden"))
	assert.NoError(t, s.WaitHidden(ctx, "#hidden"))
	assert.NoError(t, s.WaitHidden(ctx, "#missing"))
	assert.Error(t, s.WaitHidden(ctx, "#shown"))
	assert.Error(t, s.Click(ctx, "#disabled"))
}

func TestSession_Screenshot(t *testing.T) {
	d := NewDriver(nil)
	ctx := context.Background()
	s, err := d.NewSession(ctx)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "shots", "step1.png")
	require.NoError(t, s.Screenshot(ctx, path))
	assert.FileExists(t, path)
	assert.Equal(t, []string{path}, d.Sessions()[0].Screenshots())

	require.NoError(t, s.Close())
	assert.True(t, d.Sessions()[0].Closed())
}
