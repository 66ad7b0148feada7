package log

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var _ Logger = (*logrusLogger)(nil)

// LogFileName is the file created under the configured log directory.
const LogFileName = "handpose.log"

const defaultTimestampFormat = "2006/01/02 15:04:05.000000"

type logrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger logs to stdout and, when logDir is set, to logDir/handpose.log.
func NewLogrusLogger(logLevel string, logDir string) (Logger, error) {
	out := io.Writer(os.Stdout)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory '%s': %w", logDir, err)
		}
		path := filepath.Join(logDir, LogFileName)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file '%s': %w", path, err)
		}
		out = io.MultiWriter(os.Stdout, file)
	}
	return NewLogrusLoggerWithOutput(logLevel, out), nil
}

// NewLogrusLoggerWithOutput creates a logger writing to out. Unknown levels fall back to info.
func NewLogrusLoggerWithOutput(logLevel string, out io.Writer) Logger {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	base := &logrus.Logger{
		Out:       out,
		Formatter: &SimpleFormatter{TimestampFormat: defaultTimestampFormat},
		Hooks:     make(logrus.LevelHooks),
		Level:     level,
		ExitFunc:  os.Exit,
	}
	return &logrusLogger{entry: logrus.NewEntry(base)}
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() Logger {
	return NewLogrusLoggerWithOutput("panic", io.Discard)
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
func (l *logrusLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

var levelTags = map[logrus.Level]string{
	logrus.TraceLevel: "TRC",
	logrus.DebugLevel: "DBG",
	logrus.InfoLevel:  "INF",
	logrus.WarnLevel:  "WRN",
	logrus.ErrorLevel: "ERR",
	logrus.FatalLevel: "FTL",
	logrus.PanicLevel: "PNC",
}

// SimpleFormatter writes one line per entry, fields sorted by key:
//
//	2025/04/06 17:30:00.000000 [INF] stream opened peer=10.0.0.2:5000 session=2Mx...
type SimpleFormatter struct {
	TimestampFormat string
}

// Format implements logrus.Formatter.
func (f *SimpleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	layout := f.TimestampFormat
	if layout == "" {
		layout = defaultTimestampFormat
	}
	tag, ok := levelTags[entry.Level]
	if !ok {
		tag = strings.ToUpper(entry.Level.String())
	}
	fmt.Fprintf(b, "%s [%s] %s", entry.Time.Format(layout), tag, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		value := fmt.Sprint(entry.Data[k])
		if strings.ContainsAny(value, " \t\"") {
			value = fmt.Sprintf("%q", value)
		}
		fmt.Fprintf(b, " %s=%s", k, value)
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}
