package tts

import (
	"errors"
	"fmt"
)

// Common errors for the conversion core.
var (
	// Engine errors
	ErrEngineNotFound    = errors.New("engine is not registered")
	ErrEngineUnavailable = errors.New("engine is not available")
	ErrEngineClosed      = errors.New("engine has been closed")
	ErrVoiceUnknown      = errors.New("voice is unknown to the engine")
	ErrSynthesisFailed   = errors.New("synthesis failed")

	// Scheduler errors
	ErrTaskNotFound    = errors.New("task not found")
	ErrInvalidState    = errors.New("operation not permitted in current state")
	ErrTaskProcessing  = errors.New("task is currently processing")
	ErrSchedulerClosed = errors.New("scheduler has been shut down")

	// Pipeline errors
	ErrImportFailed    = errors.New("input file could not be loaded")
	ErrTextFailed      = errors.New("text processing failed")
	ErrTranscodeFailed = errors.New("transcode failed")
	ErrEmptyText       = errors.New("no text to synthesize")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ErrorKind classifies a failure for task error reporting.
type ErrorKind string

const (
	KindConfig            ErrorKind = "config_error"
	KindEngineUnavailable ErrorKind = "engine_unavailable"
	KindVoiceUnknown      ErrorKind = "voice_unknown"
	KindNetwork           ErrorKind = "network_error"
	KindSynthesis         ErrorKind = "synthesis_error"
	KindTranscode         ErrorKind = "transcode_error"
	KindFilesystem        ErrorKind = "filesystem_error"
	KindInvalidState      ErrorKind = "invalid_state"
	KindImport            ErrorKind = "import_error"
	KindText              ErrorKind = "text_error"
)

// ConvertError is a structured error raised inside a task's pipeline. The
// scheduler translates it into the task's error message; it never escapes
// the worker loop.
type ConvertError struct {
	Kind   ErrorKind // failure class per the error taxonomy
	Op     string    // operation being performed, e.g. "synthesize"
	Engine string    // engine id involved, if any
	Err    error     // underlying cause
}

// Error implements the error interface.
func (e *ConvertError) Error() string {
	if e.Engine != "" {
		return fmt.Sprintf("%s: %s [%s]: %v", e.Kind, e.Op, e.Engine, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConvertError) Unwrap() error {
	return e.Err
}

// NewConvertError builds a structured pipeline error.
func NewConvertError(kind ErrorKind, op string, err error) *ConvertError {
	return &ConvertError{Kind: kind, Op: op, Err: err}
}

// WithEngine attaches the engine id involved in the failure.
func (e *ConvertError) WithEngine(id string) *ConvertError {
	e.Engine = id
	return e
}

// KindOf extracts the ErrorKind from err, walking the wrap chain. Errors that
// are not ConvertErrors report KindSynthesis as a conservative default.
func KindOf(err error) ErrorKind {
	var ce *ConvertError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindSynthesis
}

// IsRetryable reports whether err is a transient failure worth retrying.
// Only network errors qualify; synthesis and transcode failures are final.
func IsRetryable(err error) bool {
	return KindOf(err) == KindNetwork
}
