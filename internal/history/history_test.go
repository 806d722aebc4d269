package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alcrishub/postman-runtime/internal/prepare"
	"github.com/alcrishub/postman-runtime/internal/runner"
	"github.com/alcrishub/postman-runtime/internal/scope"
	"github.com/alcrishub/postman-runtime/internal/types"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func preparedRequest(t *testing.T, name string) *prepare.PreparedRequest {
	t.Helper()
	m := prepare.New(scope.NewResolver(scope.NewChain()))
	req, err := m.Prepare(context.Background(), types.CollectionItem{
		Name: name,
		Request: &types.RequestTemplate{
			Method: "POST",
			URL:    types.URL{Raw: "http://localhost/" + name},
			Header: []types.Header{{Key: "X-Trace", Value: "1"}},
		},
	})
	require.NoError(t, err)
	return req
}

func sampleResult(t *testing.T, id string, started time.Time) *runner.RunResult {
	return &runner.RunResult{
		ID:        id,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Records: []runner.ExecutionRecord{
			{
				Index:   0,
				Name:    "create",
				Request: preparedRequest(t, "create"),
				Response: &types.Response{
					Code:         201,
					HTTPVersion:  "1.1",
					Headers:      []types.Header{{Key: "Content-Type", Value: "application/json"}},
					Size:         42,
					ResponseTime: 120 * time.Millisecond,
				},
			},
			{
				Index:        1,
				Name:         "create",
				Request:      preparedRequest(t, "create"),
				RequestError: errors.New("connection refused"),
			},
			{
				Index:        2,
				Name:         "broken",
				RequestError: errors.New("unsupported protocol version"),
			},
		},
	}
}

func TestSaveAndLoadRun(t *testing.T) {
	m := newManager(t)
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, m.Save("headers.json", sampleResult(t, "run-1", started)))

	runs, err := m.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "headers.json", runs[0].Collection)
	assert.True(t, started.Equal(runs[0].StartedAt))
	assert.Equal(t, 1500*time.Millisecond, runs[0].Duration)
	assert.Equal(t, 3, runs[0].Items)
	assert.Equal(t, 2, runs[0].Failed)
	assert.Empty(t, runs[0].CompletionError)

	execs, err := m.Executions("run-1")
	require.NoError(t, err)
	require.Len(t, execs, 3)

	assert.Equal(t, "POST", execs[0].Method)
	assert.Equal(t, "http://localhost/create", execs[0].URL)
	assert.Equal(t, 201, execs[0].StatusCode)
	assert.Equal(t, 120*time.Millisecond, execs[0].Duration)
	assert.Contains(t, execs[0].RequestHeaders, types.Header{Key: "X-Trace", Value: "1"})
	assert.Equal(t, []types.Header{{Key: "Content-Type", Value: "application/json"}}, execs[0].ResponseHeaders)

	assert.Equal(t, "connection refused", execs[1].Error)
	assert.Equal(t, 0, execs[1].StatusCode)
	assert.Empty(t, execs[2].Method)
}

func TestRunsOrderAndLimit(t *testing.T) {
	m := newManager(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		result := &runner.RunResult{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if id == "c" {
			result.CompletionError = runner.ErrCancelled
		}
		require.NoError(t, m.Save("c.json", result))
	}

	runs, err := m.Runs(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "run cancelled", runs[0].CompletionError)
	assert.Equal(t, "b", runs[1].ID)
}

func TestStats(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Save("x.json", sampleResult(t, "run-1", time.Now())))
	require.NoError(t, m.Save("x.json", sampleResult(t, "run-2", time.Now())))

	stats, err := m.Stats()
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "broken", stats[0].Name)
	assert.Equal(t, 2, stats[0].Count)
	assert.Equal(t, 2, stats[0].Errors)
	assert.Empty(t, stats[0].StatusCodes)

	assert.Equal(t, "create", stats[1].Name)
	assert.Equal(t, 4, stats[1].Count)
	assert.Equal(t, 2, stats[1].Errors)
	assert.Equal(t, map[int]int{201: 2}, stats[1].StatusCodes)
	assert.Equal(t, 120*time.Millisecond, stats[1].MaxDuration)
}

func TestDeleteAndClear(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Save("x.json", sampleResult(t, "run-1", time.Now())))
	require.NoError(t, m.Save("x.json", sampleResult(t, "run-2", time.Now())))

	require.NoError(t, m.Delete("run-1"))
	execs, err := m.Executions("run-1")
	require.NoError(t, err)
	assert.Empty(t, execs, "executions cascade with their run")

	runs, err := m.Runs(0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, m.Clear())
	runs, err = m.Runs(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestNewManagerOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pmrun.db")
	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Save("x.json", &runner.RunResult{ID: "disk", StartedAt: time.Now()}))
	require.NoError(t, m.Close())

	reopened, err := NewManager(path)
	require.NoError(t, err)
	defer reopened.Close()
	runs, err := reopened.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "disk", runs[0].ID)
}

func TestSaveNilResult(t *testing.T) {
	assert.NoError(t, newManager(t).Save("x.json", nil))
}
