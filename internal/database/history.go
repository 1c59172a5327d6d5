package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lance13c/qarun/internal/types"
)

// DB is the sqlite run history store
type DB struct {
	conn *sql.DB
}

// RunSummary is one row of the runs table
type RunSummary struct {
	RunID       string
	GeneratedAt time.Time
	Total       int
	Passed      int
	Failed      int
	ReportPaths []string
}

// New opens (creating if needed) the history database at dbPath
func New(dbPath string) (*DB, error) {
	// Create database directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.InitSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// InitSchema creates the database tables if they don't exist
func (db *DB) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		generated_at TIMESTAMP NOT NULL,
		total INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		report_paths TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS test_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		pass BOOLEAN NOT NULL,
		error TEXT,
		duration_ms INTEGER,
		has_steps BOOLEAN NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS step_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_result_id INTEGER NOT NULL,
		step INTEGER NOT NULL,
		action TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		screenshot TEXT,
		goal TEXT,
		db_result TEXT,
		api_response TEXT,
		FOREIGN KEY (test_result_id) REFERENCES test_results(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs(generated_at);
	CREATE INDEX IF NOT EXISTS idx_results_run_id ON test_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_steps_result_id ON step_results(test_result_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// SaveRun stores a report and every result in it in one transaction
func (db *DB) SaveRun(report *types.Report, reportPaths []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	paths, err := json.Marshal(reportPaths)
	if err != nil {
		return fmt.Errorf("failed to encode report paths: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO runs (run_id, generated_at, total, passed, failed, report_paths)
		VALUES (?, ?, ?, ?, ?, ?)
	`, report.RunID, report.GeneratedAt, len(report.Results), report.Passed(), report.Failed(), string(paths))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stepStmt, err := tx.Prepare(`
		INSERT INTO step_results (test_result_id, step, action, status, error, screenshot, goal, db_result, api_response)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stepStmt.Close()

	for i, res := range report.Results {
		result, err := tx.Exec(`
			INSERT INTO test_results (run_id, position, name, pass, error, duration_ms, has_steps)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, report.RunID, i, res.Name, res.Pass, res.Error, res.DurationMs, res.Steps != nil)
		if err != nil {
			return fmt.Errorf("failed to save test result %s: %w", res.Name, err)
		}
		resultID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}

		for _, step := range res.Steps {
			dbResult, err := nullJSON(step.DBResult, step.DBResult != nil)
			if err != nil {
				return err
			}
			apiResponse, err := nullJSON(step.APIResponse, step.APIResponse != nil)
			if err != nil {
				return err
			}
			_, err = stepStmt.Exec(resultID, step.Step, step.Action, string(step.Status),
				step.Error, step.Screenshot, step.Goal, dbResult, apiResponse)
			if err != nil {
				return fmt.Errorf("failed to save step %d of %s: %w", step.Step, res.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func nullJSON(v interface{}, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode step data: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// GetRecentRuns retrieves the most recent runs
func (db *DB) GetRecentRuns(limit int) ([]RunSummary, error) {
	rows, err := db.conn.Query(`
		SELECT run_id, generated_at, total, passed, failed, report_paths
		FROM runs
		ORDER BY generated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var run RunSummary
		var paths sql.NullString
		if err := rows.Scan(&run.RunID, &run.GeneratedAt, &run.Total, &run.Passed, &run.Failed, &paths); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if paths.Valid && paths.String != "" {
			if err := json.Unmarshal([]byte(paths.String), &run.ReportPaths); err != nil {
				return nil, fmt.Errorf("failed to decode report paths: %w", err)
			}
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// GetRun rebuilds the report stored under runID
func (db *DB) GetRun(runID string) (*types.Report, error) {
	report := &types.Report{RunID: runID}
	err := db.conn.QueryRow(`SELECT generated_at FROM runs WHERE run_id = ?`, runID).Scan(&report.GeneratedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT id, name, pass, error, duration_ms, has_steps
		FROM test_results
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test results: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		var res types.TestResult
		var errStr sql.NullString
		var hasSteps bool
		if err := rows.Scan(&id, &res.Name, &res.Pass, &errStr, &res.DurationMs, &hasSteps); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan test result: %w", err)
		}
		res.Error = errStr.String
		if hasSteps {
			res.Steps = []types.StepResult{}
		}
		ids = append(ids, id)
		report.Results = append(report.Results, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		if report.Results[i].Steps == nil {
			continue
		}
		steps, err := db.getSteps(id)
		if err != nil {
			return nil, err
		}
		report.Results[i].Steps = steps
	}

	return report, nil
}

func (db *DB) getSteps(resultID int64) ([]types.StepResult, error) {
	rows, err := db.conn.Query(`
		SELECT step, action, status, error, screenshot, goal, db_result, api_response
		FROM step_results
		WHERE test_result_id = ?
		ORDER BY step ASC
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	steps := []types.StepResult{}
	for rows.Next() {
		var s types.StepResult
		var status string
		var errStr, screenshot, goal, dbResult, apiResponse sql.NullString
		if err := rows.Scan(&s.Step, &s.Action, &status, &errStr, &screenshot, &goal, &dbResult, &apiResponse); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		s.Status = types.StepStatus(status)
		s.Error = errStr.String
		s.Screenshot = screenshot.String
		s.Goal = goal.String
		if dbResult.Valid {
			if err := json.Unmarshal([]byte(dbResult.String), &s.DBResult); err != nil {
				return nil, fmt.Errorf("failed to decode db result: %w", err)
			}
		}
		if apiResponse.Valid {
			s.APIResponse = &types.APIResponse{}
			if err := json.Unmarshal([]byte(apiResponse.String), s.APIResponse); err != nil {
				return nil, fmt.Errorf("failed to decode api response: %w", err)
			}
		}
		steps = append(steps, s)
	}

	return steps, rows.Err()
}

// GetStatistics returns totals across all stored runs
func (db *DB) GetStatistics() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalRuns int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM runs").Scan(&totalRuns); err != nil {
		return nil, err
	}
	stats["total_runs"] = totalRuns

	var totalTests, passedTests int
	err := db.conn.QueryRow("SELECT COUNT(*), COALESCE(SUM(pass), 0) FROM test_results").Scan(&totalTests, &passedTests)
	if err != nil {
		return nil, err
	}
	stats["total_tests"] = totalTests
	stats["passed_tests"] = passedTests

	var totalSteps int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM step_results").Scan(&totalSteps); err != nil {
		return nil, err
	}
	stats["total_steps"] = totalSteps

	return stats, nil
}
