// Package report renders run results. Every writer is a pure function of the
// report apart from the file it creates.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lance13c/qarun/internal/types"
)

// Formats
const (
	FormatJSON = "json"
	FormatHTML = "html"
	FormatXLSX = "xlsx"
)

// Build assembles the report of one run.
func Build(runID string, generatedAt time.Time, results []types.TestResult) *types.Report {
	if results == nil {
		results = []types.TestResult{}
	}
	return &types.Report{RunID: runID, GeneratedAt: generatedAt, Results: results}
}

// FileName returns report_<ms>.<format> for the report's generation time.
func FileName(rep *types.Report, format string) string {
	return "report_" + strconv.FormatInt(rep.GeneratedAt.UnixMilli(), 10) + "." + format
}

// Write renders rep in every requested format into dir and returns the
// written paths in the order requested.
func Write(rep *types.Report, dir string, formats []string, title string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create reports directory: %w", err)
	}

	var paths []string
	for _, format := range formats {
		path := filepath.Join(dir, FileName(rep, format))

		var err error
		switch format {
		case FormatJSON:
			err = WriteJSON(path, rep)
		case FormatHTML:
			err = WriteHTML(path, rep, title)
		case FormatXLSX:
			err = WriteXLSX(path, rep, title)
		default:
			err = fmt.Errorf("unsupported report format: %s", format)
		}
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteJSON writes rep as indented JSON.
func WriteJSON(path string, rep *types.Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}
	return nil
}

// ReadJSON loads a report written by WriteJSON.
func ReadJSON(path string) (*types.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rep types.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &rep, nil
}
