package classifier

import (
	"context"
	"fmt"
)

// Error is the terminal outcome of a failed classify call: either a 4xx the
// upstream will never accept, or retry exhaustion. Status is 0 for pure
// network failures.
type Error struct {
	Status   int
	Message  string
	Attempts int
}

func (e *Error) Error() string {
	return fmt.Sprintf("classifier: %s (status %d, %d attempts)", e.Message, e.Status, e.Attempts)
}

// Terminal reports whether retrying could not have helped: the upstream
// rejected the request itself.
func (e *Error) Terminal() bool {
	return e.Status >= 400 && e.Status < 500
}

// Client defines the interface for upstream sentiment classifiers.
type Client interface {
	// Classify sends text to the upstream model and returns its raw output
	// text. Retries transient failures internally; a returned error is final.
	Classify(ctx context.Context, text string) (string, error)

	// Model returns the identifier of the upstream model in use.
	Model() string
}
