package errclass

import "fmt"

// EngineError is a stable, machine-readable error class.
type EngineError struct {
	Code    string
	Message string
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	return ok && e.Code == t.Code
}

// WithMessage returns a new EngineError with the same Code but a specific message.
func (e *EngineError) WithMessage(msg string) *EngineError {
	return &EngineError{Code: e.Code, Message: msg}
}

// WithMessagef returns a new EngineError with a formatted message.
func (e *EngineError) WithMessagef(format string, args ...any) *EngineError {
	return &EngineError{Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// All stable error classes.
var (
	// Precondition failures.
	ErrFileNotExist                   = &EngineError{Code: "E_FILE_NOT_EXIST"}
	ErrInvalidUser                    = &EngineError{Code: "E_INVALID_USER"}
	ErrFileNameNotMatch               = &EngineError{Code: "E_FILE_NAME_NOT_MATCH"}
	ErrFileStatusInvalid              = &EngineError{Code: "E_FILE_STATUS_INVALID"}
	ErrSnapshotCountReachLimit        = &EngineError{Code: "E_SNAPSHOT_COUNT_LIMIT"}
	ErrSnapshotCannotCreateWhenError  = &EngineError{Code: "E_SNAPSHOT_ERROR_PEER"}
	ErrSnapshotCannotDeleteUnfinished = &EngineError{Code: "E_SNAPSHOT_UNFINISHED"}
	ErrSnapshotCannotDeleteCloning    = &EngineError{Code: "E_SNAPSHOT_CLONING"}
	ErrTaskExist                      = &EngineError{Code: "E_TASK_EXIST"}
	ErrNameInvalid                    = &EngineError{Code: "E_NAME_INVALID"}

	// Pipeline failures.
	ErrChunkSizeNotAligned = &EngineError{Code: "E_CHUNK_SIZE_NOT_ALIGNED"}
	ErrInternal            = &EngineError{Code: "E_INTERNAL"}
)
