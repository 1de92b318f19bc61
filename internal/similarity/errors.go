package similarity

import (
	"errors"
	"fmt"
)

var (
	// ErrCorruptArtifact matches every [CorruptArtifactError].
	ErrCorruptArtifact = errors.New("corrupt similarity artifact")

	ErrStaleArtifact = errors.New("similarity artifact is not newer than the loaded one")
)

// A CorruptArtifactError reports an artifact that failed validation at load.
//
// The underlying error (if any) can be accessed via errors.Unwrap.
type CorruptArtifactError struct {
	Reason string
	cause  error
}

func corrupt(cause error, format string, args ...any) *CorruptArtifactError {
	return &CorruptArtifactError{
		Reason: fmt.Sprintf(format, args...),
		cause:  cause,
	}
}

func (e *CorruptArtifactError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", ErrCorruptArtifact, e.Reason, e.cause)
	}
	return fmt.Sprintf("%s: %s", ErrCorruptArtifact, e.Reason)
}

func (e *CorruptArtifactError) Unwrap() error { return e.cause }

func (e *CorruptArtifactError) Is(target error) bool {
	return target == ErrCorruptArtifact
}
