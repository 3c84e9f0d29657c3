package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidGraph = errors.New("invalid task graph")
	ErrCycleFound   = errors.New("cycle detected")
	ErrUnknownTask  = errors.New("unknown task")
	// ErrSkipped is reported for tasks that did not run because a
	// dependency failed.
	ErrSkipped = errors.New("skipped")
)

// GraphError describes why a graph was rejected.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

func unknownf(format string, args ...any) error {
	return &GraphError{Kind: ErrUnknownTask, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	msg := "cycle"
	if len(path) > 0 {
		msg = "cycle: " + strings.Join(path, " -> ")
	}
	return &GraphError{Kind: ErrCycleFound, Msg: msg}
}

// TaskError is the failure of a single task inside a run.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task '%s': %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
