// Package errors defines the error taxonomy of the asset pipeline.
//
// Per-file transform failures are TransformErrors: they are collected and
// reported but never abort the task that produced them. Everything else
// (filesystem failures, server bind failures) is returned up the call chain
// and fails the task.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrServerBind reports that the page server or the reload proxy could
	// not listen on its port.
	ErrServerBind = stderrors.New("server bind failed")
	// ErrUnsafePath reports a delete or write target outside the project.
	ErrUnsafePath = stderrors.New("unsafe path")
)

// TransformError represents a failure to convert one source file
type TransformError struct {
	Task    string
	File    string
	Line    int
	Column  int
	Message string
	Cause   error
	Time    time.Time
}

// NewTransformError wraps cause for file processed by task.
func NewTransformError(task, file string, cause error) *TransformError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &TransformError{
		Task:    task,
		File:    file,
		Message: msg,
		Cause:   cause,
		Time:    time.Now(),
	}
}

// At records a source position.
func (e *TransformError) At(line, column int) *TransformError {
	e.Line = line
	e.Column = column
	return e
}

// Error implements the error interface
func (e *TransformError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s:%d:%d: %s", e.Task, e.File, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Task, e.File, e.Message)
}

// Unwrap returns the underlying cause.
func (e *TransformError) Unwrap() error {
	return e.Cause
}

// IsTransform reports whether err is, or wraps, a TransformError.
func IsTransform(err error) bool {
	var te *TransformError
	return stderrors.As(err, &te)
}

// Is, As and Join forward to the standard library so callers only import
// one errors package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Join(errs ...error) error { return stderrors.Join(errs...) }

func New(text string) error { return stderrors.New(text) }

// ErrorCollector collects transform errors across concurrently running tasks
type ErrorCollector struct {
	errors []*TransformError
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make([]*TransformError, 0),
	}
}

// Add records err.
func (ec *ErrorCollector) Add(err *TransformError) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.errors = append(ec.errors, err)
}

// Errors returns a copy of every collected error
func (ec *ErrorCollector) Errors() []*TransformError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]*TransformError, len(ec.errors))
	copy(result, ec.errors)
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.errors) > 0
}

// Clear forgets the errors of task, or every error when task is empty.
func (ec *ErrorCollector) Clear(task string) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if task == "" {
		ec.errors = ec.errors[:0]
		return
	}
	kept := ec.errors[:0]
	for _, err := range ec.errors {
		if err.Task != task {
			kept = append(kept, err)
		}
	}
	ec.errors = kept
}

// ByFile returns errors for a specific file
func (ec *ErrorCollector) ByFile(file string) []*TransformError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var out []*TransformError
	for _, err := range ec.errors {
		if err.File == file {
			out = append(out, err)
		}
	}
	return out
}

// ByTask returns errors grouped by task name, tasks sorted.
func (ec *ErrorCollector) ByTask() map[string][]*TransformError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	out := make(map[string][]*TransformError)
	for _, err := range ec.errors {
		out[err.Task] = append(out[err.Task], err)
	}
	for _, errs := range out {
		sort.SliceStable(errs, func(i, j int) bool { return errs[i].File < errs[j].File })
	}
	return out
}
