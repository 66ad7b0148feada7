package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleFormatter(t *testing.T) {
	f := &SimpleFormatter{TimestampFormat: "2006/01/02"}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 4, 6, 17, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "peer disconnected",
		Data:    logrus.Fields{"session": "abc", "peer": "10.0.0.2:5000"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2025/04/06 [WRN] peer disconnected peer=10.0.0.2:5000 session=abc\n", string(out))
}

func TestLoggerLevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusLoggerWithOutput("info", &buf)

	logger.Debugf("hidden")
	logger.WithField("session", "s1").Infof("record %d", 7)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "[INF] record 7 session=s1")
}

func TestLoggerInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrusLoggerWithOutput("chatty", &buf)
	logger.Debugf("hidden")
	logger.Infof("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogrusLoggerWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := NewLogrusLogger("debug", dir)
	require.NoError(t, err)

	logger.Infof("hello file")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INF] hello file")
}

func TestSimpleFormatterQuotesValuesWithSpaces(t *testing.T) {
	f := &SimpleFormatter{}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 4, 6, 17, 30, 0, 0, time.UTC),
		Level:   logrus.DebugLevel,
		Message: "record",
		Data:    logrus.Fields{"pose": "pos=(1.00, 2.00)"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "2025/04/06 17:30:00.000000 [DBG] record pose=\"pos=(1.00, 2.00)\"\n", string(out))
}
