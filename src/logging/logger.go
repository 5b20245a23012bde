package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Separator joins the leading columns of every log line.
const Separator = " - "

// TimeLayout matches the "2006-01-02 15:04:05,000" stamp used by the log file.
const TimeLayout = "2006-01-02 15:04:05,000"

// Options configures the process logger.
type Options struct {
	// Name is the root logger name printed in the second column.
	Name string
	// File is the path of the persistent log. Empty disables the file sink.
	File string
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Console receives the second copy of every line. Defaults to stderr.
	Console io.Writer
}

// New builds a logger writing "timestamp - name - LEVEL - message" lines to
// both the log file and the console. The returned close func flushes and
// releases the file.
func New(opts Options) (*zap.Logger, func(), error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	enc := NewLineEncoder()
	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(console)), level),
	}

	var file *os.File
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("logging: create log dir: %w", err)
			}
		}
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open %s: %w", opts.File, err)
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.Lock(file), level))
	}

	name := opts.Name
	if name == "" {
		name = "chat-agent"
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.ErrorOutput(zapcore.Lock(os.Stderr))).Named(name)
	closer := func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return logger, closer, nil
}

// ParseLevel converts a textual level into a zap level, defaulting to info.
func ParseLevel(raw string) (zapcore.Level, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return level, fmt.Errorf("logging: unknown level %q", raw)
	}
	return level, nil
}

// NewLineEncoder returns the console encoder used by every sink.
func NewLineEncoder() zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		NameKey:          "logger",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(TimeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: Separator,
	}
	return lineEncoder{Encoder: zapcore.NewConsoleEncoder(cfg)}
}

// lineEncoder folds the level into the logger-name column so the console
// encoder prints name before level.
type lineEncoder struct {
	zapcore.Encoder
}

func (e lineEncoder) Clone() zapcore.Encoder {
	return lineEncoder{Encoder: e.Encoder.Clone()}
}

func (e lineEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.LoggerName = ent.LoggerName + Separator + ent.Level.CapitalString()
	return e.Encoder.EncodeEntry(ent, fields)
}
