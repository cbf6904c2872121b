// Package logging provides the server's append-only event log. Every
// component reports through one Logger instance, which writes timestamped
// lines to webserver.log and rotates the file at 10 MiB keeping 10
// backups. Old webserver.log* files are removed when the logger is built,
// so each process starts with a fresh log history.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 10
	maxBackups = 10
)

// Logger is the serialized event log. zap cores serialize writes
// internally, so concurrent Printf calls produce whole lines.
type Logger struct {
	zl   *zap.SugaredLogger
	sink *lumberjack.Logger
}

// New deletes any previous log files sharing the path prefix, then opens
// a rotating log at path.
func New(path string) (*Logger, error) {
	if err := removeOldLogs(path); err != nil {
		return nil, fmt.Errorf("failed to clear old logs: %w", err)
	}

	sink := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}

	encCfg := zapcore.EncoderConfig{
		MessageKey:       "msg",
		TimeKey:          "ts",
		LevelKey:         zapcore.OmitKey,
		EncodeTime:       gmtTimeEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(sink),
		zapcore.InfoLevel,
	)

	return &Logger{zl: zap.New(core).Sugar(), sink: sink}, nil
}

// gmtTimeEncoder renders timestamps as "2006-01-02 15:04:05 GMT", the
// line prefix format of the log file.
func gmtTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format("2006-01-02 15:04:05") + " GMT")
}

func removeOldLogs(path string) error {
	matches, err := filepath.Glob(path + "*")
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Printf appends one formatted event line.
func (l *Logger) Printf(format string, args ...interface{}) {
	l.zl.Infof(format, args...)
}

// Close flushes buffered lines and closes the underlying file.
func (l *Logger) Close() error {
	_ = l.zl.Sync()
	return l.sink.Close()
}
