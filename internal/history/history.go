// Package history persists collection runs to SQLite.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"

	"github.com/alcrishub/postman-runtime/internal/config"
	"github.com/alcrishub/postman-runtime/internal/migrations"
	"github.com/alcrishub/postman-runtime/internal/runner"
	"github.com/alcrishub/postman-runtime/internal/types"
)

const memoryPath = ":memory:"

// Run is a stored run summary
type Run struct {
	ID              string        `json:"id" yaml:"id"`
	Collection      string        `json:"collection" yaml:"collection"`
	StartedAt       time.Time     `json:"startedAt" yaml:"startedAt"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
	Items           int           `json:"items" yaml:"items"`
	Failed          int           `json:"failed" yaml:"failed"`
	CompletionError string        `json:"completionError,omitempty" yaml:"completionError,omitempty"`
}

// Execution is one stored item of a run
type Execution struct {
	RunID           string         `json:"runId" yaml:"runId"`
	Index           int            `json:"index" yaml:"index"`
	Name            string         `json:"name" yaml:"name"`
	Method          string         `json:"method,omitempty" yaml:"method,omitempty"`
	URL             string         `json:"url,omitempty" yaml:"url,omitempty"`
	Protocol        string         `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	RequestHeaders  []types.Header `json:"requestHeaders,omitempty" yaml:"requestHeaders,omitempty"`
	StatusCode      int            `json:"statusCode" yaml:"statusCode"`
	HTTPVersion     string         `json:"httpVersion,omitempty" yaml:"httpVersion,omitempty"`
	ResponseHeaders []types.Header `json:"responseHeaders,omitempty" yaml:"responseHeaders,omitempty"`
	ResponseSize    int            `json:"responseSize" yaml:"responseSize"`
	Duration        time.Duration  `json:"duration" yaml:"duration"`
	Error           string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Stats aggregates executions sharing a request name
type Stats struct {
	Name        string        `json:"name" yaml:"name"`
	Count       int           `json:"count" yaml:"count"`
	Errors      int           `json:"errors" yaml:"errors"`
	AvgDuration time.Duration `json:"avgDuration" yaml:"avgDuration"`
	MinDuration time.Duration `json:"minDuration" yaml:"minDuration"`
	MaxDuration time.Duration `json:"maxDuration" yaml:"maxDuration"`
	StatusCodes map[int]int   `json:"statusCodes" yaml:"statusCodes"`
}

type Manager struct {
	db *sql.DB
}

// NewManager opens (creating if needed) the database at dbPath and migrates it
func NewManager(dbPath string) (*Manager, error) {
	if dbPath != memoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), config.DirPermissions); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if dbPath == memoryPath {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Manager{db: db}, nil
}

// Save stores a finished run and its records in one transaction
func (m *Manager) Save(collection string, result *runner.RunResult) error {
	if result == nil {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin history transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var completion sql.NullString
	if result.CompletionError != nil {
		completion = sql.NullString{String: result.CompletionError.Error(), Valid: true}
	}
	_, err = tx.Exec(`
		INSERT INTO runs (id, collection, started_at, duration_ms, items, failed, completion_error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		result.ID,
		collection,
		result.StartedAt.UTC().Format(time.RFC3339Nano),
		result.Duration.Milliseconds(),
		len(result.Records),
		result.Failed(),
		completion,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", result.ID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO executions (
			run_id, item_index, name, method, url, protocol, request_headers,
			status_code, http_version, response_headers, response_size, duration_ms, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare execution insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range result.Records {
		e := executionFromRecord(result.ID, rec)
		reqHeaders, err := json.MarshalToString(e.RequestHeaders)
		if err != nil {
			return fmt.Errorf("failed to marshal request headers: %w", err)
		}
		respHeaders, err := json.MarshalToString(e.ResponseHeaders)
		if err != nil {
			return fmt.Errorf("failed to marshal response headers: %w", err)
		}
		var errMsg sql.NullString
		if e.Error != "" {
			errMsg = sql.NullString{String: e.Error, Valid: true}
		}
		if _, err := stmt.Exec(
			e.RunID, e.Index, e.Name, e.Method, e.URL, e.Protocol, reqHeaders,
			e.StatusCode, e.HTTPVersion, respHeaders, e.ResponseSize, e.Duration.Milliseconds(), errMsg,
		); err != nil {
			return fmt.Errorf("failed to save execution %d: %w", e.Index, err)
		}
	}

	return tx.Commit()
}

// executionFromRecord prefers the headers seen on the wire over the assembled set
func executionFromRecord(runID string, rec runner.ExecutionRecord) Execution {
	e := Execution{RunID: runID, Index: rec.Index, Name: rec.Name}
	if rec.RequestError != nil {
		e.Error = rec.RequestError.Error()
	}
	if req := rec.Request; req != nil {
		e.Method = req.Method()
		e.URL = req.URL()
		e.Protocol = req.Protocol()
		for _, h := range req.Headers().Transmitted() {
			e.RequestHeaders = append(e.RequestHeaders, types.Header{Key: h.Key, Value: h.Value})
		}
	}
	if rec.Trace != nil && len(rec.Trace.Request.Headers) > 0 {
		e.RequestHeaders = rec.Trace.Request.Headers
	}
	if resp := rec.Response; resp != nil {
		e.StatusCode = resp.Code
		e.HTTPVersion = resp.HTTPVersion
		e.ResponseHeaders = resp.Headers
		e.ResponseSize = resp.Size
		e.Duration = resp.ResponseTime
	}
	return e
}

// Runs returns the most recent runs first; limit <= 0 returns all
func (m *Manager) Runs(limit int) ([]Run, error) {
	query := `
		SELECT id, collection, started_at, duration_ms, items, failed, completion_error
		FROM runs ORDER BY started_at DESC`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			startedAt  string
			durationMs int64
			completion sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Collection, &startedAt, &durationMs, &r.Items, &r.Failed, &completion); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, fmt.Errorf("run %s has a malformed start time: %w", r.ID, err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.CompletionError = completion.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Executions returns the items of a run in index order
func (m *Manager) Executions(runID string) ([]Execution, error) {
	rows, err := m.db.Query(`
		SELECT run_id, item_index, name, method, url, protocol, request_headers,
		       status_code, http_version, response_headers, response_size, duration_ms, error
		FROM executions WHERE run_id = ? ORDER BY item_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var (
			e                       Execution
			method, url, protocol   sql.NullString
			httpVersion, errMsg     sql.NullString
			reqHeaders, respHeaders sql.NullString
			durationMs              int64
		)
		if err := rows.Scan(&e.RunID, &e.Index, &e.Name, &method, &url, &protocol, &reqHeaders,
			&e.StatusCode, &httpVersion, &respHeaders, &e.ResponseSize, &durationMs, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.Method, e.URL, e.Protocol = method.String, url.String, protocol.String
		e.HTTPVersion, e.Error = httpVersion.String, errMsg.String
		e.Duration = time.Duration(durationMs) * time.Millisecond
		if reqHeaders.Valid {
			_ = json.UnmarshalFromString(reqHeaders.String, &e.RequestHeaders)
		}
		if respHeaders.Valid {
			_ = json.UnmarshalFromString(respHeaders.String, &e.ResponseHeaders)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats aggregates every stored execution by request name
func (m *Manager) Stats() ([]Stats, error) {
	rows, err := m.db.Query(`
		SELECT name,
		       COUNT(*),
		       SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END),
		       AVG(duration_ms), MIN(duration_ms), MAX(duration_ms)
		FROM executions GROUP BY name ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}

	var stats []Stats
	for rows.Next() {
		var (
			s            Stats
			avg          float64
			minMs, maxMs int64
		)
		if err := rows.Scan(&s.Name, &s.Count, &s.Errors, &avg, &minMs, &maxMs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		s.AvgDuration = time.Duration(avg * float64(time.Millisecond))
		s.MinDuration = time.Duration(minMs) * time.Millisecond
		s.MaxDuration = time.Duration(maxMs) * time.Millisecond
		stats = append(stats, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range stats {
		codes, err := m.statusCodes(stats[i].Name)
		if err != nil {
			return nil, err
		}
		stats[i].StatusCodes = codes
	}
	return stats, nil
}

func (m *Manager) statusCodes(name string) (map[int]int, error) {
	rows, err := m.db.Query(`
		SELECT status_code, COUNT(*) FROM executions
		WHERE name = ? AND status_code > 0 GROUP BY status_code`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query status codes: %w", err)
	}
	defer rows.Close()

	codes := make(map[int]int)
	for rows.Next() {
		var code, count int
		if err := rows.Scan(&code, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status code: %w", err)
		}
		codes[code] = count
	}
	return codes, rows.Err()
}

// Delete removes a run and its executions
func (m *Manager) Delete(runID string) error {
	if _, err := m.db.Exec("DELETE FROM runs WHERE id = ?", runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

// Clear removes every stored run
func (m *Manager) Clear() error {
	if _, err := m.db.Exec("DELETE FROM runs"); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
