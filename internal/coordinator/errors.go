package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the game is not in the live set. Nothing was changed or sent.
	ErrNotFound = errors.New("game not in live set")
	// ErrWriteFailed matches every *WriteFailedError.
	ErrWriteFailed  = errors.New("score write failed")
	ErrInvalidTeam  = errors.New("invalid team")
	ErrInvalidScore = errors.New("invalid score")
	ErrClosed       = errors.New("coordinator closed")
)

// WriteFailedError reports a repository write that was rejected. The
// optimistic value has already been rolled back when it is returned.
type WriteFailedError struct {
	GameID string
	Op     Op
	Err    error
}

func (e *WriteFailedError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.GameID, e.Err)
}

func (e *WriteFailedError) Unwrap() error { return e.Err }

func (e *WriteFailedError) Is(target error) bool { return target == ErrWriteFailed }

// AsWriteFailed attempts to unwrap an error into a WriteFailedError.
func AsWriteFailed(err error) (*WriteFailedError, bool) {
	var wf *WriteFailedError
	if errors.As(err, &wf) {
		return wf, true
	}
	return nil, false
}
