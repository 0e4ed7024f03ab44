package clog

import (
	"io"
	"os"

	"github.com/apex/log"
)

var clogger = NewContextLogger(os.Stdout)

// Default returns the process wide ContextLogger.
func Default() *ContextLogger {
	return clogger
}

// OpenOutput resolves "stdout", "stderr" or a file path into a writer. Files are
// truncated.
func OpenOutput(output string) (io.WriteCloser, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.Create(output)
	}
}

func AddLoggingContext(ctx string, w io.WriteCloser) {
	clogger.AddLoggingContext(ctx, w)
}

func RemoveLoggingContext(ctx string) {
	clogger.RemoveLoggingContext(ctx)
}

func SetLevel(ctx string, level log.Level) {
	clogger.SetLevel(ctx, level)
}

func SetGlobalLoggerLevel(level log.Level) {
	clogger.SetGlobalLoggerLevel(level)
}

func SetLevelFromString(ctx, s string) error {
	return clogger.SetLevelFromString(ctx, s)
}

func SetGlobalLoggerLevelFromString(s string) error {
	return clogger.SetGlobalLoggerLevelFromString(s)
}

func SetOutput(ctx string, w io.WriteCloser, name string) error {
	return clogger.SetOutput(ctx, w, name)
}

func SetGlobalOutput(w io.WriteCloser, name string) error {
	return clogger.SetGlobalOutput(w, name)
}

func UsingCtx(ctx string) *log.Entry {
	return clogger.UsingCtx(ctx)
}

func Global() *log.Entry {
	return clogger.Global()
}

func Contexts() []ContextInfo {
	return clogger.Contexts()
}
