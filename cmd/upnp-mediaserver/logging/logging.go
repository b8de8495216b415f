// Package logging builds the operational loggers for upnp-mediaserver.
//
// Records are encoded by zap and reach the server packages through
// log/slog. Each subsystem gets its own level so that, for example, SSDP
// chatter can be silenced while SOAP stays at debug.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"

	"github.com/upnp-media/upnp-go/cmd/upnp-mediaserver/config"
	"github.com/upnp-media/upnp-go/pkg/server"
)

// Set is the root logger plus one logger per subsystem.
type Set struct {
	Root    *slog.Logger
	Loggers server.Loggers

	zap *zap.Logger
}

// Sync flushes buffered entries.
func (s *Set) Sync() {
	if s.zap != nil {
		_ = s.zap.Sync()
	}
}

// New builds loggers writing to w according to cfg.
func New(cfg config.Log, w io.Writer) (*Set, error) {
	root, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder(cfg.Format), zapcore.Lock(zapcore.AddSync(w)), zapcore.DebugLevel)
	z := zap.New(core)
	base := zapslog.NewHandler(core)

	sub := func(name string) (*slog.Logger, error) {
		level := root
		if s, ok := cfg.Levels[name]; ok {
			l, err := config.ParseLevel(s)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			level = l
		}
		return slog.New(NewLevelHandler(level, base)).With("component", name), nil
	}

	set := &Set{Root: slog.New(NewLevelHandler(root, base)), zap: z}
	targets := map[string]**slog.Logger{
		"ssdp": &set.Loggers.SSDP,
		"soap": &set.Loggers.SOAP,
		"gena": &set.Loggers.GENA,
		"cds":  &set.Loggers.CDS,
		"http": &set.Loggers.HTTP,
	}
	for name, dst := range targets {
		l, err := sub(name)
		if err != nil {
			return nil, err
		}
		*dst = l
	}
	return set, nil
}

// Stderr builds loggers writing to standard error.
func Stderr(cfg config.Log) (*Set, error) {
	return New(cfg, os.Stderr)
}

func encoder(format string) zapcore.Encoder {
	if format == "json" {
		ec := zap.NewProductionEncoderConfig()
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(ec)
}

// LevelHandler drops records below its level before they reach the
// wrapped handler.
type LevelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

// NewLevelHandler wraps h. If h is itself a LevelHandler, its inner
// handler is wrapped instead.
func NewLevelHandler(level slog.Leveler, h slog.Handler) *LevelHandler {
	if lh, ok := h.(*LevelHandler); ok {
		h = lh.handler
	}
	return &LevelHandler{level: level, handler: h}
}

// Enabled reports whether level passes both this handler and the inner one.
func (h *LevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level() && h.handler.Enabled(ctx, level)
}

// Handle forwards r.
func (h *LevelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

// WithAttrs keeps the level on the derived handler.
func (h *LevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewLevelHandler(h.level, h.handler.WithAttrs(attrs))
}

// WithGroup keeps the level on the derived handler.
func (h *LevelHandler) WithGroup(name string) slog.Handler {
	return NewLevelHandler(h.level, h.handler.WithGroup(name))
}
