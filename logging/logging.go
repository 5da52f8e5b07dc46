// Package logging is a small structured-logging façade backed by
// github.com/ipfs/go-log/v2 (go-libp2p-kad-dht's own logging dependency,
// itself a thin subsystem-naming wrapper over go.uber.org/zap), matching
// the package-level `var log = logging.Logger("table")` idiom used by
// diogo464-go-libp2p-kbucket and BDWare-go-libp2p-kad-dht rather than
// hand-rolling one over log/slog. Terminal output is colorized via
// mattn/go-colorable the same way go-ethereum's cmd/geth colorizes its own.
package logging

import (
	"io"

	golog "github.com/ipfs/go-log/v2"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the interface the rest of the module depends on. Each DHT
// component is handed one at construction; there is no package-level
// default a library caller could accidentally rely on.
type Logger interface {
	Trace(msg string, kv ...any)
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	// With returns a derived Logger that always includes the given
	// key/value pairs, for tagging a subsystem or a single operation.
	With(kv ...any) Logger
}

type logger struct {
	s *zap.SugaredLogger
}

// New wraps an already-built *zap.SugaredLogger, for callers that assemble
// their own zap core.
func New(s *zap.SugaredLogger) Logger {
	return &logger{s: s}
}

// NewTerminal builds a colorized, human-readable Logger writing to w (use
// colorable.NewColorableStdout() for os.Stdout with ANSI support on every
// platform go-colorable supports).
func NewTerminal(w io.Writer, level zapcore.Level) Logger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level)
	return New(zap.New(core).Sugar())
}

// NewDefault returns the reference terminal logger used by cmd/kaddht: a
// go-log/v2 subsystem logger named "kaddht", colorized to stdout at Info
// level.
func NewDefault() Logger {
	golog.SetAllLoggers(golog.LevelInfo)
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(colorable.NewColorableStdout()), zapcore.InfoLevel)
	s := golog.Logger("kaddht").WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core }))
	return New(s)
}

// Nop returns a Logger that discards everything, used as the zero-value
// default so components never have to nil-check their logger.
func Nop() Logger {
	return New(zap.NewNop().Sugar())
}

// Trace logs below Debug. zap has no distinct trace level, so this is
// carried as a "level":"trace" field on a Debug-level record, the same
// trick go-log/v2 callers use when they need a level zap doesn't have.
func (l *logger) Trace(msg string, kv ...any) {
	l.s.Debugw(msg, append([]any{"level", "trace"}, kv...)...)
}
func (l *logger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *logger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *logger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *logger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *logger) With(kv ...any) Logger {
	return &logger{s: l.s.With(kv...)}
}
