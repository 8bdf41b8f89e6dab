package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewatch/internal/transport/transporttest"
)

func TestWriterFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "tracker"))

	log.Debug("hidden")
	log.Info("tracked", Int64("owner_id", 42), Err(errors.New("boom")), Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "tracked", m["message"])
	assert.Equal(t, "tracker", m["comp"])
	assert.EqualValues(t, 42, m["owner_id"])
	assert.Equal(t, "boom", m["err"])
	assert.Contains(t, m["caller"], "logx_test.go:")
}

func TestZeroAndNop(t *testing.T) {
	var zero Logger
	assert.True(t, zero.IsZero())
	assert.False(t, Nop().IsZero())
	assert.NotPanics(t, func() { zero.Error("dropped") })
}

func TestFormatTelegramLine(t *testing.T) {
	line := `{"level":"warn","time":"x","message":"check failed","url":"https://a","comp":"detector"}`
	assert.Equal(t, "[WARN] check failed\n- comp=detector\n- url=https://a", formatTelegramLine([]byte(line)))
	assert.Equal(t, "not json", formatTelegramLine([]byte(" not json \n")))
	assert.Len(t, truncate(strings.Repeat("x", 5000), 3500), 3500)
}

func TestTelegramSink(t *testing.T) {
	rec := &transporttest.Recorder{}
	svc, log := New(Config{Level: "debug", Telegram: TelegramConfig{ThreadID: 7, RatePerSec: 100}}, rec)
	defer svc.Close()
	svc.SetTelegramTarget(-100, 0)
	svc.Apply(Config{Level: "debug", Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100}})

	log.Info("below threshold")
	log.Warn("disk nearly full", String("dir", "/tmp"))

	require.Eventually(t, func() bool { return len(rec.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	sent := rec.Sent()[0]
	assert.Equal(t, int64(-100), sent.To.ChatID)
	assert.Equal(t, 7, sent.To.ThreadID)
	assert.True(t, strings.HasPrefix(sent.Text, "[WARN] disk nearly full"))
	assert.Contains(t, sent.Text, "- dir=/tmp")
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pw.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, nil)
	log.Info("to file", String("k", "v"))
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"message":"to file"`)
	assert.Contains(t, string(b), `"k":"v"`)
}
