package diagnostics

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// defaultThreshold bounds the number of lex/parse errors tolerated before
// translation aborts with AbortTooManySyntaxErrors (spec.md §4.5, §7).
const defaultThreshold = 25

// Record is a single diagnostic event, optionally persisted by a Sink.
type Record struct {
	ID      uuid.UUID
	Kind    string // "lex", "parse", "warn", "abort", "runtime"
	Code    int
	Message string
	Line    int
}

// Log accumulates lex/parse errors against a threshold and classifies
// runtime/abort conditions. A nil Sink makes persistence a no-op.
type Log struct {
	Count     int
	Threshold int
	Sink      Sink
	color     bool
	w         *os.File
}

// NewLog constructs a Log that reports to stderr, colorizing output only
// when stderr is a terminal (mirrors the teacher's isatty-gated REPL color).
func NewLog() *Log {
	w := os.Stderr
	return &Log{Threshold: defaultThreshold, w: w, color: isatty.IsTerminal(w.Fd())}
}

// WithThreshold overrides the default error-count abort threshold.
func (l *Log) WithThreshold(n int) *Log {
	l.Threshold = n
	return l
}

// Lex reports a scanner error at line and counts it against the threshold.
// The scanner never aborts on its own; it skips the offending text and
// keeps producing tokens.
func (l *Log) Lex(code ErrorCode, line int) {
	l.report("lex", int(code), code.String(), line)
}

// Parse reports a parser/type error at line and counts it against the
// threshold. Returns true if the threshold has now been exceeded and the
// caller should abort with AbortTooManySyntaxErrors.
func (l *Log) Parse(code ErrorCode, line int) bool {
	l.report("parse", int(code), code.String(), line)
	return l.Count > l.Threshold
}

// Warn prints msg to the diagnostic sink without counting against the
// error threshold, per spec.md §4.5's `#warn "msg"`.
func (l *Log) Warn(msg string, line int) {
	if l.w != nil {
		if l.color {
			fmt.Fprintf(l.w, "\x1b[33mwarning\x1b[0m:%d: %s\n", line, msg)
		} else {
			fmt.Fprintf(l.w, "warning:%d: %s\n", line, msg)
		}
	}
	if l.Sink != nil {
		_ = l.Sink.Record(Record{ID: uuid.New(), Kind: "warn", Code: 0, Message: msg, Line: line})
	}
}

func (l *Log) report(kind string, code int, msg string, line int) {
	l.Count++
	rec := Record{ID: uuid.New(), Kind: kind, Code: code, Message: msg, Line: line}
	if l.w != nil {
		if l.color {
			fmt.Fprintf(l.w, "\x1b[31merror\x1b[0m:%d: %s\n", line, msg)
		} else {
			fmt.Fprintf(l.w, "error:%d: %s\n", line, msg)
		}
	}
	if l.Sink != nil {
		_ = l.Sink.Record(rec)
	}
}

// AbortError is a fatal translator error (spec.md §7's abort_code
// taxonomy); the process should exit with int(Code) as its status.
type AbortError struct {
	Code AbortCode
}

func (a *AbortError) Error() string {
	return fmt.Sprintf("abort: %s", a.Code)
}

// Abort constructs a fatal AbortError, recording it through the sink.
func (l *Log) Abort(code AbortCode) error {
	if l.Sink != nil {
		_ = l.Sink.Record(Record{ID: uuid.New(), Kind: "abort", Code: int(code), Message: code.String()})
	}
	return errors.WithStack(&AbortError{Code: code})
}

// RuntimeError is raised by the VM and halts the current instance
// (spec.md §7's runtime_error_code taxonomy).
type RuntimeError struct {
	Code RuntimeErrorCode
	IP   int
}

func (r *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error at ip=%d: %s", r.IP, r.Code)
}

// Runtime constructs a RuntimeError, recording it through the sink.
func (l *Log) Runtime(code RuntimeErrorCode, ip int) error {
	if l.Sink != nil {
		_ = l.Sink.Record(Record{ID: uuid.New(), Kind: "runtime", Code: int(code), Message: code.String(), Line: ip})
	}
	return errors.WithStack(&RuntimeError{Code: code, IP: ip})
}
