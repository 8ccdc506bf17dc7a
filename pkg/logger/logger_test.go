package logger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestInitializeCreatesDailyFile(t *testing.T) {
	dir := t.TempDir()
	l := Initialize("test_service", dir)
	l.Info("hello", zap.String("video_id", "v1"))
	l.Sync()

	path := filepath.Join(dir, "log_"+time.Now().Format("2006-01-02")+".log")
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "video_id")
	assert.Contains(t, string(data), "test_service")
}

func TestDebugModeSharedWithChild(t *testing.T) {
	l := Initialize("test_service", t.TempDir())
	child := l.With(zap.String("job_id", "j1"))

	assert.False(t, child.isDebug())
	l.SetDebugMode(true)
	assert.True(t, child.isDebug())
}

func TestSetNewNop(t *testing.T) {
	SetNewNop()
	assert.NotPanics(t, func() {
		Log.Info("discarded")
		Log.Errorf("discarded", assert.AnError)
	})
}
