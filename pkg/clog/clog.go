package clog

import (
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/apex/log"
)

// ContextLogger routes log entries to a per-context logger. A context is a named
// subsystem (transfer, http, ...) whose level and output can be changed at
// runtime without touching the others. Entries for a context that has no logger
// of its own go to the global logger.
type ContextLogger struct {
	GlobalLogger   *log.Logger
	ContextLoggers sync.Map
}

const (
	GlobalLoggerCtx = "global"
	TransferCtx     = "transfer"
	HTTPCtx         = "http"
	StoreCtx        = "store"
)

// ContextInfo describes the current state of a logging context.
type ContextInfo struct {
	Name   string `json:"name"`
	Level  string `json:"level"`
	Output string `json:"output"`
}

func NewContextLogger(globalLoggerWriter io.WriteCloser) *ContextLogger {
	return &ContextLogger{
		GlobalLogger: &log.Logger{
			Handler: NewHandler(globalLoggerWriter),
			Level:   log.InfoLevel,
		},
	}
}

func (l *ContextLogger) AddLoggingContext(ctx string, w io.WriteCloser) {
	logger := &log.Logger{
		Handler: NewHandler(w),
		Level:   l.GlobalLogger.Level,
	}

	if old, loaded := l.ContextLoggers.Swap(ctx, logger); loaded {
		if h := loggerInterfaceToHandler(old); h != nil {
			h.Close()
		}
	}
}

func (l *ContextLogger) RemoveLoggingContext(ctx string) {
	logger, ok := l.ContextLoggers.LoadAndDelete(ctx)
	if !ok {
		return
	}

	if handler := loggerInterfaceToHandler(logger); handler != nil {
		handler.Close()
	}
}

func (l *ContextLogger) SetLevel(ctx string, level log.Level) {
	if logger := l.loggerFor(ctx); logger != nil {
		logger.Level = level
	}
}

func (l *ContextLogger) SetGlobalLoggerLevel(level log.Level) {
	l.SetLevel(GlobalLoggerCtx, level)
}

func (l *ContextLogger) SetLevelFromString(ctx, s string) error {
	level, err := log.ParseLevel(s)
	if err != nil {
		return err
	}

	if l.loggerFor(ctx) == nil {
		return fmt.Errorf("no such context %s", ctx)
	}

	l.SetLevel(ctx, level)

	return nil
}

func (l *ContextLogger) SetGlobalLoggerLevelFromString(s string) error {
	return l.SetLevelFromString(GlobalLoggerCtx, s)
}

func (l *ContextLogger) SetOutput(ctx string, w io.WriteCloser, name string) error {
	logger := l.loggerFor(ctx)
	if logger == nil {
		return fmt.Errorf("no such context %s", ctx)
	}

	handler := loggerInterfaceToHandler(logger)
	if handler == nil {
		return fmt.Errorf("context %s does not use a clog handler", ctx)
	}

	handler.SetOutput(w, name)
	return nil
}

func (l *ContextLogger) SetGlobalOutput(w io.WriteCloser, name string) error {
	return l.SetOutput(GlobalLoggerCtx, w, name)
}

func (l *ContextLogger) UsingCtx(ctx string) *log.Entry {
	logger := l.getContextLogger(ctx)
	if logger == nil {
		return l.GlobalLogger.WithField("ctx", ctx)
	}
	return logger.WithField("ctx", ctx)
}

func (l *ContextLogger) Global() *log.Entry {
	return l.UsingCtx(GlobalLoggerCtx)
}

// Contexts lists the global logger followed by every registered context, sorted
// by name.
func (l *ContextLogger) Contexts() []ContextInfo {
	var infos []ContextInfo
	l.ContextLoggers.Range(func(key, value any) bool {
		if logger := castToLogger(value); logger != nil {
			infos = append(infos, describe(key.(string), logger))
		}
		return true
	})

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return append([]ContextInfo{describe(GlobalLoggerCtx, l.GlobalLogger)}, infos...)
}

func describe(name string, logger *log.Logger) ContextInfo {
	info := ContextInfo{Name: name, Level: logger.Level.String()}
	if h := loggerInterfaceToHandler(logger); h != nil {
		info.Output = h.OutputName()
	}
	return info
}

func (l *ContextLogger) loggerFor(ctx string) *log.Logger {
	if ctx == GlobalLoggerCtx {
		return l.GlobalLogger
	}

	return l.getContextLogger(ctx)
}

func (l *ContextLogger) getContextLogger(ctx string) *log.Logger {
	logger, ok := l.ContextLoggers.Load(ctx)
	if !ok {
		return nil
	}

	return castToLogger(logger)
}

func castToLogger(logger interface{}) *log.Logger {
	clogger, ok := logger.(*log.Logger)
	if !ok {
		return nil
	}

	return clogger
}

func loggerInterfaceToHandler(logger interface{}) *Handler {
	clogger := castToLogger(logger)
	if clogger == nil {
		return nil
	}

	h, ok := clogger.Handler.(*Handler)
	if !ok {
		return nil
	}

	return h
}
