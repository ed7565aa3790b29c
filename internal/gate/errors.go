package gate

import (
	"errors"
	"fmt"
)

// ErrLivenessRequired is returned when a login is attempted without a fresh
// liveness pass. The session's liveness state is left untouched.
var ErrLivenessRequired = errors.New("liveness verification required before login")

// ErrModelNotTrained is returned by Predict when no trained model exists yet.
var ErrModelNotTrained = errors.New("recognition model not trained")

// ErrNoTrainingData is returned by a retrain when the registry holds no
// usable samples.
var ErrNoTrainingData = errors.New("no training data available")

// ValidationError reports malformed or missing input. Nothing is persisted
// and no security decision is logged for it beyond the error itself.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// AuthorizationError reports an operation attempted without the required
// level or admin override.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string {
	return e.Msg
}

// ProcessingError reports a feature-engine or storage failure. Callers
// degrade to a safe no-match/error response, never a crash.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
