package testcase

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lance13c/qarun/internal/types"
)

// Extension is the file suffix of test case files.
const Extension = ".txt"

// ErrNoMatch is returned by Filter when no test case carries the requested name.
var ErrNoMatch = errors.New("no test case found")

// Load reads every *.txt file in dir, sorted by name. The file name, extension
// included, is the test case's identity.
func Load(dir string) ([]types.TestCase, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read test case directory %s: %w", dir, err)
	}

	var cases []types.TestCase
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Extension) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read test case %s: %w", entry.Name(), err)
		}
		cases = append(cases, types.TestCase{Name: entry.Name(), Content: string(data)})
	}

	sort.Slice(cases, func(i, j int) bool { return cases[i].Name < cases[j].Name })
	return cases, nil
}

// LoadFile reads a single test case file.
func LoadFile(path string) (types.TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.TestCase{}, fmt.Errorf("failed to read test case %s: %w", path, err)
	}
	return types.TestCase{Name: filepath.Base(path), Content: string(data)}, nil
}

// Filter restricts cases to the one named name. An empty name keeps all cases.
// The bare name without extension is accepted as well.
func Filter(cases []types.TestCase, name string) ([]types.TestCase, error) {
	if name == "" {
		return cases, nil
	}
	for _, tc := range cases {
		if tc.Name == name || strings.TrimSuffix(tc.Name, Extension) == name {
			return []types.TestCase{tc}, nil
		}
	}
	return nil, fmt.Errorf("%w with name: %s", ErrNoMatch, name)
}
