package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lance13c/qarun/internal/database"
	"github.com/lance13c/qarun/internal/types"
)

type fakeHistory struct {
	runs      []database.RunSummary
	report    *types.Report
	lastLimit int
	err       error
}

func (f *fakeHistory) GetRecentRuns(limit int) ([]database.RunSummary, error) {
	f.lastLimit = limit
	return f.runs, f.err
}

func (f *fakeHistory) GetRun(runID string) (*types.Report, error) {
	if f.report == nil || f.report.RunID != runID {
		return nil, errors.New("run not found: " + runID)
	}
	return f.report, nil
}

func (f *fakeHistory) GetStatistics() (map[string]interface{}, error) {
	return map[string]interface{}{"total_runs": 1}, f.err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	rec := get(t, New(t.TempDir(), nil).Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestRuns(t *testing.T) {
	h := &fakeHistory{runs: []database.RunSummary{{RunID: "r1", GeneratedAt: time.Unix(0, 0), Total: 2, Passed: 1, Failed: 1}}}
	srv := New(t.TempDir(), h).Handler()

	rec := get(t, srv, "/api/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, h.lastLimit)

	var runs []database.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].RunID)

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/runs?limit=x").Code)
}

func TestRuns_EmptyIsArray(t *testing.T) {
	rec := get(t, New(t.TempDir(), &fakeHistory{}).Handler(), "/api/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestRun(t *testing.T) {
	h := &fakeHistory{report: &types.Report{RunID: "abc", Results: []types.TestResult{{Name: "login.txt", Pass: true}}}}
	srv := New(t.TempDir(), h).Handler()

	rec := get(t, srv, "/api/runs/abc")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep types.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "login.txt", rep.Results[0].Name)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/runs/nope").Code)
}

func TestStats(t *testing.T) {
	rec := get(t, New(t.TempDir(), &fakeHistory{}).Handler(), "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_runs":1}`, rec.Body.String())

	failing := New(t.TempDir(), &fakeHistory{err: errors.New("disk gone")}).Handler()
	assert.Equal(t, http.StatusInternalServerError, get(t, failing, "/api/stats").Code)
}

func TestHistoryDisabled(t *testing.T) {
	rec := get(t, New(t.TempDir(), nil).Handler(), "/api/runs")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReportsAreServed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report_1.json"), []byte(`{"runId":"x"}`), 0644))

	rec := get(t, New(dir, nil).Handler(), "/reports/report_1.json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runId":"x"}`, rec.Body.String())
}
