package locator

import (
	"fmt"
	"strings"

	"github.com/lance13c/qarun/internal/types"
)

// Map translates logical tokens (an id, class, name or xpath) into concrete
// selectors.
type Map map[string]string

// BuildMap derives the selector map of a catalog. Later entries overwrite
// earlier ones that share a token.
func BuildMap(catalog types.Catalog) Map {
	m := make(Map, len(catalog))
	for _, e := range catalog {
		if e.ID != "" {
			m[e.ID] = "#" + e.ID
		}
		if e.Class != "" {
			m[e.Class] = "." + strings.Join(strings.Split(e.Class, " "), ".")
		}
		if e.Name != "" {
			m[e.Name] = fmt.Sprintf(`[name="%s"]`, e.Name)
		}
		if e.XPath != "" {
			m[e.XPath] = e.XPath
		}
	}
	return m
}

// Resolve returns the concrete selector for token, or token itself when the
// map has no entry for it.
func (m Map) Resolve(token string) string {
	if sel, ok := m[token]; ok {
		return sel
	}
	return token
}
