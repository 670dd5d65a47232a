package engine

import (
	"errors"
	"fmt"

	"github.com/solverlab/constraintstream/pkg/index"
)

// ExtractorFailureError reports that a joiner property, an initialization
// check, a planning id extractor or a filter predicate failed during
// propagation. The failure is fatal to the current move: the session is
// rolled back to its last consistent state and the error surfaces to the
// solver as a failed move, never a silently dropped delta.
type ExtractorFailureError struct {
	Op    string
	Cause error
}

func (e *ExtractorFailureError) Error() string {
	return fmt.Sprintf("extractor failure in %s: %v", e.Op, e.Cause)
}

func (e *ExtractorFailureError) Unwrap() error { return e.Cause }

func newExtractorFailure(op string, cause error) error {
	return &ExtractorFailureError{Op: op, Cause: cause}
}

// ErrSessionAborted marks a session that hit an internal consistency
// violation. Such a session refuses further mutations: masking an engine
// defect would silently corrupt scores.
var ErrSessionAborted = errors.New("session aborted after a consistency violation")

// IsConsistencyViolation reports whether err stems from a broken internal
// index or membership invariant.
func IsConsistencyViolation(err error) bool {
	var ce *index.ConsistencyError
	return errors.As(err, &ce)
}

// IsExtractorFailure reports whether err stems from a failing extractor or
// predicate.
func IsExtractorFailure(err error) bool {
	var xe *ExtractorFailureError
	return errors.As(err, &xe)
}
