package locator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lance13c/qarun/internal/types"
)

// LoadDir concatenates every *.json locator file in dir, in file name order.
// A missing directory yields an empty catalog.
func LoadDir(dir string) (types.Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return types.Catalog{}, nil
		}
		return nil, fmt.Errorf("failed to read locator directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	catalog := types.Catalog{}
	for _, name := range names {
		part, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, part...)
	}
	return catalog, nil
}

// LoadFile reads one locator file: a JSON array of entries.
func LoadFile(path string) (types.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read locator file %s: %w", path, err)
	}
	var catalog types.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse locator file %s: %w", path, err)
	}
	return catalog, nil
}

// WriteFile stores a catalog as an indented JSON array.
func WriteFile(path string, catalog types.Catalog) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create locator directory: %w", err)
	}
	if catalog == nil {
		catalog = types.Catalog{}
	}
	data, err := json.MarshalIndent(catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal locators: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Relevant keeps the entries whose id, class, name, text or locator value
// appears literally in text.
func Relevant(catalog types.Catalog, text string) types.Catalog {
	out := types.Catalog{}
	for _, e := range catalog {
		if mentioned(text, e.ID, e.Class, e.Name, e.Text, e.Locator) {
			out = append(out, e)
		}
	}
	return out
}

func mentioned(text string, fields ...string) bool {
	for _, f := range fields {
		if f != "" && strings.Contains(text, f) {
			return true
		}
	}
	return false
}

type dedupeKey struct {
	id, class, name, xpath string
}

// Dedupe drops empty entries and every entry whose (id, class, name, xpath)
// was already seen, keeping the first occurrence.
func Dedupe(catalog types.Catalog) types.Catalog {
	seen := make(map[dedupeKey]bool, len(catalog))
	out := make(types.Catalog, 0, len(catalog))
	for _, e := range catalog {
		if e.IsEmpty() {
			continue
		}
		k := dedupeKey{e.ID, e.Class, e.Name, e.XPath}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}
