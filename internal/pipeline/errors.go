package pipeline

import (
	"errors"
	"fmt"
)

// ErrNotReregistrable is returned when asked to re-register a result which
// did not fail at registration.
var ErrNotReregistrable = errors.New("result did not fail registration")

// Kind classifies pipeline failures. Kind implements error so that
// errors.Is(err, pipeline.TranscodeFailed) matches any *StageError
// of that kind.
type Kind int

const (
	IOError Kind = iota
	ProbeFailed
	ThumbnailFailed
	TranscodeFailed
	RegistrationFailed
)

func (kind Kind) String() string {
	switch kind {
	case IOError:
		return "IOError"
	case ProbeFailed:
		return "ProbeFailed"
	case ThumbnailFailed:
		return "ThumbnailFailed"
	case TranscodeFailed:
		return "TranscodeFailed"
	case RegistrationFailed:
		return "RegistrationFailed"
	}

	return fmt.Sprintf("Kind(%d)", int(kind))
}

func (kind Kind) Error() string { return kind.String() }

// Fatal reports whether failures of this kind prevent the job
// from producing an asset.
func (kind Kind) Fatal() bool {
	return kind == IOError || kind == TranscodeFailed
}

// StageError wraps the cause of a failure along with the kind of failure
// and the stage the job was transitioning in to when it occurred.
type StageError struct {
	Kind  Kind
	Stage Stage
	Err   error
}

func (err *StageError) Error() string {
	return fmt.Sprintf("%s while transitioning to %s: %v", err.Kind, err.Stage, err.Err)
}

func (err *StageError) Unwrap() error { return err.Err }

func (err *StageError) Is(target error) bool {
	kind, ok := target.(Kind)
	return ok && kind == err.Kind
}

// KindOf extracts the Kind of the first StageError in the chain.
func KindOf(err error) (Kind, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind, true
	}

	return 0, false
}
