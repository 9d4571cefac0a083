// Package syncerrors provides structured error handling for searchsync
// with error categorization, key-value context, and stack capture.
//
// Errors are categorized by ErrorType, which drives the retry policy:
// collaborator outages and timeouts are retryable with backoff, while
// malformed data and configuration mistakes are not.
//
//	if err := store.Set(ctx, entity, wm); err != nil {
//	    return syncerrors.Wrap(err, syncerrors.ErrorTypeCheckpoint, "commit failed").
//	        WithDetail("entity", entity)
//	}
package syncerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType categorizes an error for handling strategies and operator
// visibility.
type ErrorType string

const (
	// ErrorTypeUnavailable means a collaborator (database, index, or
	// checkpoint store) could not be reached.
	ErrorTypeUnavailable ErrorType = "unavailable"
	// ErrorTypeExtraction means a change-detection query failed.
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeMalformedRow means a single source row could not be shaped
	// into a document. Scoped to the row, never fatal to its batch.
	ErrorTypeMalformedRow ErrorType = "malformed_row"
	// ErrorTypePartialLoad means the index rejected part of a bulk batch.
	ErrorTypePartialLoad ErrorType = "partial_load"
	// ErrorTypeCheckpoint means a watermark could not be durably persisted.
	ErrorTypeCheckpoint ErrorType = "checkpoint"
	// ErrorTypeTimeout means a pipeline stage exceeded its deadline.
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeConfig represents configuration errors.
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeValidation represents invalid API usage or state.
	ErrorTypeValidation ErrorType = "validation"
)

// Error is a categorized error with key-value context and the call
// stack captured at creation.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame is a single captured call-stack frame.
type StackFrame struct {
	Function string
	File     string
	Line     int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key-value detail. Chainable.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given type, capturing the call stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates an error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps err with a type and message, preserving err as the cause.
// If err is already a structured Error its stack is kept. Returns nil
// for a nil input.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existing.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable reports whether the error should be retried with backoff.
// Outages, failed queries, stage timeouts, and partial bulk rejections
// are transient; malformed rows and configuration errors are not.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeUnavailable, ErrorTypeExtraction, ErrorTypeTimeout, ErrorTypePartialLoad:
		return true
	default:
		return false
	}
}

// IsType checks whether err carries the given error type anywhere in
// its chain.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
