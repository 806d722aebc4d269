package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/alcrishub/postman-runtime/internal/config"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error { return nil }

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger)
	logger.Info("dropped")
	Sync()
}

func TestInitializeJSON(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	out := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "pmrun"}, out)
	GetLogger().Named("runner").Debug("item completed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace([]byte(out.String())), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "pmrun.runner", entry["logger"])
	assert.Equal(t, "item completed", entry["msg"])
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &syncBuffer{}
	second := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "info", Format: "console"}, first)
	Initialize(config.LoggerConfig{Level: "info", Format: "console"}, second)

	GetLogger().Info("hello")
	assert.Contains(t, first.String(), "hello")
	assert.Contains(t, first.String(), "INFO")
	assert.Empty(t, second.String())
}

func TestInitializeLevelFiltersAndFile(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logFile := filepath.Join(t.TempDir(), "pmrun.log")
	out := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "warn", Format: "console", LogFile: logFile, MaxSize: 1}, zapcore.AddSync(out))

	GetLogger().Info("quiet")
	GetLogger().Warn("loud")
	Sync()

	assert.NotContains(t, out.String(), "quiet")
	assert.Contains(t, out.String(), "loud")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"loud"`)
}
