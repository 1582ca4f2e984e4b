// Package werror defines the eight error kinds the job runner converts every
// stage failure into, plus a single wrapping type that carries a kind
// alongside the underlying cause.
package werror

import "fmt"

// Kind enumerates the error categories the runner boundary distinguishes.
// Stages never invent new kinds; they pick the closest of these eight.
type Kind string

const (
	CorruptMedia        Kind = "CorruptMedia"
	StorageUnavailable  Kind = "StorageUnavailable"
	TranscribeFailed    Kind = "TranscribeFailed"
	InsufficientCredits Kind = "InsufficientCredits"
	EncodeFailed        Kind = "EncodeFailed"
	Timeout             Kind = "Timeout"
	DBFailure           Kind = "DBFailure"
	ConfigError         Kind = "ConfigError"
)

// WorkerError wraps a cause with one of the Kind constants above. It is the
// only error type stages should return for anything the runner must classify;
// everything else is a bug.
type WorkerError struct {
	Kind    Kind
	Stage   string
	Message string
	Cause   error
}

func (e *WorkerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *WorkerError) Unwrap() error { return e.Cause }

// New builds a WorkerError with no wrapped cause.
func New(kind Kind, stage, message string) *WorkerError {
	return &WorkerError{Kind: kind, Stage: stage, Message: message}
}

// Wrap builds a WorkerError around an existing error.
func Wrap(kind Kind, stage string, cause error, message string) *WorkerError {
	return &WorkerError{Kind: kind, Stage: stage, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *WorkerError,
// otherwise returns the empty Kind.
func KindOf(err error) Kind {
	var we *WorkerError
	if ok := asWorkerError(err, &we); ok {
		return we.Kind
	}
	return ""
}

func asWorkerError(err error, target **WorkerError) bool {
	for err != nil {
		if we, ok := err.(*WorkerError); ok {
			*target = we
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Truncate clamps a human-readable error message to the runner's 2000-char
// storage limit for the Job row's error column.
func Truncate(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	return msg[:limit]
}
