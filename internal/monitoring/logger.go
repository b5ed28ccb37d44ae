package monitoring

import (
	"fmt"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger shared by the board packages.
// It defaults to log.Printf; tests mute or capture it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Recorder collects formatted log lines. Use Capture to install one.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

func (r *Recorder) logf(format string, v ...interface{}) {
	r.mu.Lock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
	r.mu.Unlock()
}

// Capture redirects Logf into a Recorder until restore is called.
func Capture() (rec *Recorder, restore func()) {
	prev := Logf
	rec = &Recorder{}
	Logf = rec.logf
	return rec, func() { Logf = prev }
}
