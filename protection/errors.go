package protection

import (
	"github.com/pkg/errors"
)

var (
	// ErrIndexUnavailable means the outputs could not be classified. Nothing may be spent based on
	// a call that returned it.
	ErrIndexUnavailable = errors.New("Index Unavailable")

	// ErrClassificationIncomplete means the classification succeeded with degraded detail. Every
	// inscribed output is still protected.
	ErrClassificationIncomplete = errors.New("Classification Incomplete")
)

func IsIndexUnavailable(err error) bool {
	return errors.Cause(err) == ErrIndexUnavailable
}
