package locator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lance13c/qarun/internal/types"
)

func TestBuildMap_SelectorForms(t *testing.T) {
	m := BuildMap(types.Catalog{
		{ID: "username"},
		{Class: "btn btn-primary"},
		{Name: "password"},
		{XPath: "//button[@type='submit']"},
		{Text: "no identity"},
	})

	assert.Equal(t, "#username", m["username"])
	assert.Equal(t, ".btn.btn-primary", m["btn btn-primary"])
	assert.Equal(t, `[name="password"]`, m["password"])
	assert.Equal(t, "//button[@type='submit']", m["//button[@type='submit']"])
	assert.Len(t, m, 4)
}

func TestBuildMap_OneKeyPerIdentifyingField(t *testing.T) {
	m := BuildMap(types.Catalog{{ID: "email", Class: "field", Name: "user_email"}})

	assert.Equal(t, Map{
		"email":      "#email",
		"field":      ".field",
		"user_email": `[name="user_email"]`,
	}, m)
}

func TestMap_Resolve(t *testing.T) {
	m := BuildMap(types.Catalog{{ID: "username"}})

	assert.Equal(t, "#username", m.Resolve("username"))
	assert.Equal(t, "input.search", m.Resolve("input.search"))
	assert.Equal(t, "", m.Resolve(""))
}

func TestLoadDir_ConcatenatesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_dashboard.json"), []byte(`[{"class":"dashboard-welcome"}]`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_login.json"), []byte(`[{"id":"username"},{"name":"password","locator":"pwd"}]`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0644))

	catalog, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, catalog, 3)
	assert.Equal(t, "username", catalog[0].ID)
	assert.Equal(t, "pwd", catalog[1].Locator)
	assert.Equal(t, "dashboard-welcome", catalog[2].Class)
}

func TestLoadDir_Missing(t *testing.T) {
	catalog, err := LoadDir(filepath.Join(t.TempDir(), "Locators"))
	require.NoError(t, err)
	assert.Empty(t, catalog)
}

func TestLoadDir_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"id":`), 0644))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "page.json")
	require.NoError(t, WriteFile(path, types.Catalog{{ID: "q"}}))

	back, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, types.Catalog{{ID: "q"}}, back)
}

func TestRelevant(t *testing.T) {
	catalog := types.Catalog{
		{ID: "username"},
		{Class: "dashboard-welcome"},
		{Name: "password"},
		{Text: "Sign out"},
		{Locator: "cart-icon"},
		{XPath: "//div"},
	}

	got := Relevant(catalog, "Fill username and password, then check the cart-icon")
	assert.Equal(t, types.Catalog{{ID: "username"}, {Name: "password"}, {Locator: "cart-icon"}}, got)

	assert.Empty(t, Relevant(catalog, "nothing relevant"))
	assert.NotNil(t, Relevant(nil, "x"))
}

func TestDedupe(t *testing.T) {
	got := Dedupe(types.Catalog{
		{ID: "a", Text: "first"},
		{ID: "a", Text: "second"},
		{},
		{ID: "a", Class: "x"},
		{Name: "n"},
		{Name: "n"},
	})
	assert.Equal(t, types.Catalog{{ID: "a", Text: "first"}, {ID: "a", Class: "x"}, {Name: "n"}}, got)
}

const loginPage = `<!doctype html>
<html><head><title>Login</title><style>.x{}</style></head>
<body>
  <form id="login-form" class="form  stacked">
    <input id="username" name="user" type="text" placeholder="Email">
    <input name="password" type="password">
    <button class="btn btn-primary" type="submit">  Sign
      in </button>
    <button type="button">Cancel</button>
  </form>
  <script id="boot">window.x = 1</script>
</body></html>`

func TestFromHTML(t *testing.T) {
	catalog, err := FromHTML(loginPage)
	require.NoError(t, err)

	assert.Contains(t, catalog, types.LocatorEntry{ID: "login-form", Class: "form stacked"})
	assert.Contains(t, catalog, types.LocatorEntry{ID: "username", Name: "user", Type: "text", Placeholder: "Email"})
	assert.Contains(t, catalog, types.LocatorEntry{Name: "password", Type: "password"})
	assert.Contains(t, catalog, types.LocatorEntry{
		Class: "btn btn-primary",
		Type:  "submit",
		Text:  "Sign in",
		XPath: "/html[1]/body[1]/form[1]/button[1]",
	})
	assert.Contains(t, catalog, types.LocatorEntry{
		Type:  "button",
		Text:  "Cancel",
		XPath: "/html[1]/body[1]/form[1]/button[2]",
	})

	for _, e := range catalog {
		assert.NotEqual(t, "boot", e.ID, "script elements are skipped")
	}
}

type fakeSource struct {
	html    string
	entries types.Catalog
	err     error
}

func (f *fakeSource) HTML(ctx context.Context) (string, error) { return f.html, f.err }

func (f *fakeSource) Evaluate(ctx context.Context, script string, out interface{}) error {
	if f.err != nil {
		return f.err
	}
	data, err := json.Marshal(f.entries)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func TestExtract(t *testing.T) {
	ctx := context.Background()

	src := &fakeSource{html: loginPage, entries: types.Catalog{{ID: "a"}, {ID: "a"}, {Name: "b"}}}

	dom, err := Extract(ctx, src, StrategyDOM)
	require.NoError(t, err)
	assert.Equal(t, types.Catalog{{ID: "a"}, {Name: "b"}}, dom)

	fromHTML, err := Extract(ctx, src, StrategyHTML)
	require.NoError(t, err)
	assert.NotEmpty(t, fromHTML)

	_, err = Extract(ctx, src, "ocr")
	assert.Error(t, err)

	boom := errors.New("page crashed")
	_, err = Extract(ctx, &fakeSource{err: boom}, StrategyHTML)
	assert.ErrorIs(t, err, boom)
}
