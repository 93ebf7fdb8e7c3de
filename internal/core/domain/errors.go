package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrTemporary         = errors.New("temporary failure")
	ErrProcessingFailure = errors.New("processing failure")
	ErrObjectNotFound    = errors.New("object not found")
	ErrUnsupported       = errors.New("unsupported operation")
	ErrTooLarge          = errors.New("payload too large")
	// ErrStaleTransition reports that the document is no longer in a status
	// that accepts the requested change.
	ErrStaleTransition = errors.New("stale status transition")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
