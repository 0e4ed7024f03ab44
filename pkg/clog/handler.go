package clog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
)

// Handler is an apex/log handler that writes one line per entry:
//
//	LEVEL yyyy-mm-dd hh:mm:ss message   key=value key=value
//
// with fields sorted by name.
type Handler struct {
	mu         sync.Mutex
	Writer     io.WriteCloser
	outputName string
}

var levelToStrings = [...]string{
	log.DebugLevel: "DEBUG",
	log.InfoLevel:  "INFO",
	log.WarnLevel:  "WARN",
	log.ErrorLevel: "ERROR",
	log.FatalLevel: "FATAL",
}

type field struct {
	Name  string
	Value interface{}
}

type byName []field

func (a byName) Len() int           { return len(a) }
func (a byName) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byName) Less(i, j int) bool { return a[i].Name < a[j].Name }

func NewHandler(w io.WriteCloser) *Handler {
	return &Handler{Writer: w, outputName: nameOf(w)}
}

// SetOutput swaps the writer, closing the previous one unless it is stdout or
// stderr. An empty name is derived from the writer.
func (h *Handler) SetOutput(w io.WriteCloser, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	closeUnlessStd(h.Writer)
	h.Writer = w
	h.outputName = name
	if h.outputName == "" {
		h.outputName = nameOf(w)
	}
}

func (h *Handler) OutputName() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outputName
}

func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	closeUnlessStd(h.Writer)
}

func (h *Handler) HandleLog(e *log.Entry) error {
	level := levelToStrings[e.Level]
	fields := make([]field, 0, len(e.Fields))

	for k, v := range e.Fields {
		fields = append(fields, field{k, v})
	}

	sort.Sort(byName(fields))

	var b bytes.Buffer
	_, _ = fmt.Fprintf(&b, "%5s %s %-25s", level, time.Now().Format(time.DateTime), e.Message)

	for _, f := range fields {
		_, _ = fmt.Fprintf(&b, " %s=%v", f.Name, f.Value)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, _ = fmt.Fprintln(h.Writer, b.String())

	return nil
}

func closeUnlessStd(w io.WriteCloser) {
	if w == nil || w == os.Stdout || w == os.Stderr {
		return
	}

	_ = w.Close()
}

func nameOf(w io.WriteCloser) string {
	switch w {
	case os.Stdout:
		return "stdout"
	case os.Stderr:
		return "stderr"
	}

	if f, ok := w.(*os.File); ok {
		return f.Name()
	}

	return fmt.Sprintf("%T", w)
}
