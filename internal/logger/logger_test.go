package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var linePattern = regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] \[(DEBUG|INFO|WARN|ERROR)\] `)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	return NewWithWriter(buf, level, "text", false), buf
}

func TestLevelFiltering(t *testing.T) {
	t.Run("DebugLevelShowsAllMessages", func(t *testing.T) {
		log, buf := newBufferLogger("DEBUG")

		log.Debug("debug message")
		log.Info("info message")
		log.Warn("warn message")
		log.Error("error message")

		output := buf.String()
		assert.Contains(t, output, "[DEBUG] debug message")
		assert.Contains(t, output, "[INFO] info message")
		assert.Contains(t, output, "[WARN] warn message")
		assert.Contains(t, output, "[ERROR] error message")
	})

	t.Run("InfoLevelFiltersDebug", func(t *testing.T) {
		log, buf := newBufferLogger("INFO")

		log.Debug("debug message")
		log.Info("info message")

		assert.NotContains(t, buf.String(), "debug message")
		assert.Contains(t, buf.String(), "info message")
	})

	t.Run("ErrorLevelFiltersEverythingElse", func(t *testing.T) {
		log, buf := newBufferLogger("error")

		log.Info("info message")
		log.Warn("warn message")
		log.Error("error message")

		assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
		assert.Contains(t, buf.String(), "error message")
	})

	t.Run("InvalidLevelFallsBackToInfo", func(t *testing.T) {
		log, buf := newBufferLogger("LOUD")

		log.Debug("debug message")
		log.Info("info message")

		assert.NotContains(t, buf.String(), "debug message")
		assert.Contains(t, buf.String(), "info message")
	})

	t.Run("SetLevelAppliesToChildren", func(t *testing.T) {
		log, buf := newBufferLogger("INFO")
		child := log.With(KeyClient, "10.0.0.1:5000")

		child.Debug("before")
		log.SetLevel("DEBUG")
		child.Debug("after")

		assert.NotContains(t, buf.String(), "before")
		assert.Contains(t, buf.String(), "after")
		assert.True(t, log.Enabled(-4))
	})
}

func TestTextFormat(t *testing.T) {
	log, buf := newBufferLogger("INFO")

	log.Info("session finished", KeyLogin, "alice", KeyVectors, 2, "ok", true)

	line := strings.TrimSuffix(buf.String(), "\n")
	assert.Regexp(t, linePattern, line)
	assert.True(t, strings.HasSuffix(line, "session finished login=alice vectors=2 ok=true"), line)
}

func TestTextFormatWithBoundFields(t *testing.T) {
	log, buf := newBufferLogger("INFO")

	log.With(KeyClient, "127.0.0.1:4000").Info("accepted", KeyActive, 3)

	assert.Contains(t, buf.String(), "accepted client=127.0.0.1:4000 active=3")
}

func TestTextFormatEmptyString(t *testing.T) {
	log, buf := newBufferLogger("INFO")

	log.Info("login received", KeyLogin, "")

	assert.Contains(t, buf.String(), `login=""`)
}

func TestTextFormatQuotesControlCharacters(t *testing.T) {
	log, buf := newBufferLogger("INFO")

	forged := "mallory\n[2026-10-16 12:00:00] [INFO] Client authenticated login=admin"
	log.Info("Authentication failed", KeyLogin, forged)

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"), out)
	assert.Contains(t, out, "login="+strconv.Quote(forged))
}

func TestTextFormatQuotesSpacesAndEquals(t *testing.T) {
	log, buf := newBufferLogger("INFO")

	log.Info("rejected", KeyLogin, "bob admin=yes", KeyState, "tab\there", KeyError, errors.New("read: connection reset"))

	out := buf.String()
	assert.Contains(t, out, `login="bob admin=yes"`)
	assert.Contains(t, out, `state="tab\there"`)
	assert.Contains(t, out, `error="read: connection reset"`)
}

func TestJSONFormat(t *testing.T) {
	buf := new(bytes.Buffer)
	log := NewWithWriter(buf, "INFO", "json", false)

	log.Info("hello", KeyPort, 33333)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "INFO", record["level"])
	assert.EqualValues(t, 33333, record[KeyPort])
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	log, buf := newBufferLogger("INFO")

	const (
		writers = 16
		lines   = 50
	)

	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := range lines {
				log.Info("tick", "writer", id, "seq", j)
			}
		}(i)
	}
	wg.Wait()

	out := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, out, writers*lines)
	for _, line := range out {
		assert.Regexp(t, linePattern, line)
		assert.Equal(t, 1, strings.Count(line, "tick"), line)
	}
}

func TestNewAppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vcalc.log")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0644))

	log, err := New(Config{Level: "INFO", Output: path})
	require.NoError(t, err)
	log.Info("first")
	log.Warn("second")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "existing", lines[0])
	assert.Contains(t, lines[1], "[INFO] first")
	assert.Contains(t, lines[2], "[WARN] second")
}

func TestNewFailsOnUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "vcalc.log")

	_, err := New(Config{Output: path})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestCloseIsIdempotent(t *testing.T) {
	log, err := New(Config{Output: filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)

	assert.NoError(t, log.Close())
	assert.NoError(t, log.Close())
	assert.NoError(t, Discard().Close())
}
