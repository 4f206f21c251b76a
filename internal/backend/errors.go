// Package backend holds error classification shared by all external backends
// (embedding API, vector store, generation API).
package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout indicates a backend call exceeded its caller-supplied deadline.
var ErrTimeout = errors.New("backend call timed out")

// ClassifyTimeout wraps err as ErrTimeout when it stems from a context
// deadline, otherwise returns err unchanged. op names the failed call.
func ClassifyTimeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return err
}
