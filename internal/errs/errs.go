// Package errs provides structured error types shared across the engine.
package errs

import (
	"strconv"
	"strings"
)

// Code identifies a framework-level error category (spec.md §7's error taxonomy).
type Code string

const (
	// CodeInitialization indicates a factory/source/sink Init hook failed at startup.
	CodeInitialization Code = "initialization_failure"
	// CodeRuntimeFactory indicates a factory's Process/ChangeRun threw during event processing.
	CodeRuntimeFactory Code = "runtime_factory_failure"
	// CodeMissingFactory indicates a recursive factory lookup found no registered producer.
	CodeMissingFactory Code = "missing_factory"
	// CodeWorkerTimeout indicates a supervisor observed a worker exceeding its heartbeat threshold.
	CodeWorkerTimeout Code = "worker_timeout"
	// CodeInvalid indicates invalid configuration or topology wiring.
	CodeInvalid Code = "invalid_request"
	// CodeUnknown wraps any panic/error not otherwise categorized.
	CodeUnknown Code = "unknown_exception"
)

// E captures a structured error with the contextual fields the spec requires
// error reports to carry: factory name, tag, plugin, event/run id, worker id.
type E struct {
	Code    Code
	Message string

	Factory  string
	Tag      string
	Plugin   string
	EventNum int64
	RunNum   int64
	Worker   int
	Arrow    string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs a structured error for the given code.
func New(code Code, opts ...Option) *E {
	e := &E{Code: code, EventNum: -1, RunNum: -1, Worker: -1} //nolint:exhaustruct
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message.
func WithMessage(msg string) Option {
	trimmed := strings.TrimSpace(msg)
	return func(e *E) { e.Message = trimmed }
}

// WithCause sets the underlying wrapped error.
func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

// WithFactory annotates the error with the factory's identity.
func WithFactory(name, tag, plugin string) Option {
	return func(e *E) {
		e.Factory = name
		e.Tag = tag
		e.Plugin = plugin
	}
}

// WithEvent annotates the error with the event/run numbers in play.
func WithEvent(eventNum, runNum int64) Option {
	return func(e *E) {
		e.EventNum = eventNum
		e.RunNum = runNum
	}
}

// WithWorker annotates the error with the worker id and arrow name that observed it.
func WithWorker(workerID int, arrow string) Option {
	return func(e *E) {
		e.Worker = workerID
		e.Arrow = arrow
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 8)
	parts = append(parts, "code="+string(e.Code))
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Factory != "" {
		parts = append(parts, "factory="+strconv.Quote(e.Factory))
	}
	if e.Tag != "" {
		parts = append(parts, "tag="+strconv.Quote(e.Tag))
	}
	if e.Plugin != "" {
		parts = append(parts, "plugin="+strconv.Quote(e.Plugin))
	}
	if e.Arrow != "" {
		parts = append(parts, "arrow="+strconv.Quote(e.Arrow))
	}
	if e.EventNum >= 0 {
		parts = append(parts, "event="+strconv.FormatInt(e.EventNum, 10))
	}
	if e.RunNum >= 0 {
		parts = append(parts, "run="+strconv.FormatInt(e.RunNum, 10))
	}
	if e.Worker >= 0 {
		parts = append(parts, "worker="+strconv.Itoa(e.Worker))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}
	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// IsTimeout reports whether the error originated from a worker timeout.
func (e *E) IsTimeout() bool {
	return e != nil && e.Code == CodeWorkerTimeout
}
