// Package capability defines the external oracle interfaces the workflow
// depends on - a reasoning model and a retrieval backend - together with the
// failure taxonomy every call site must handle. Stages receive these handles
// by injection; there is no package-level client state.
package capability

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout indicates a capability call exceeded its bounded timeout.
	// Every call site catches this and substitutes a deterministic fallback;
	// a bare timeout must never propagate out of a stage.
	ErrTimeout = errors.New("capability: call timed out")

	// ErrMalformed indicates a capability produced output that could not be
	// parsed into the expected structure. Call sites degrade to a default
	// structure or plain-text treatment, never raise it past the node.
	ErrMalformed = errors.New("capability: malformed response")

	// ErrNoResults indicates a retrieval call completed but found nothing.
	ErrNoResults = errors.New("capability: no results")
)

// Request is a single reasoning invocation. Timeout bounds the call; zero
// means the caller's context deadline is the only bound.
type Request struct {
	Prompt  string
	System  string
	Timeout time.Duration
}

// Reasoner is the "ask a model, get text back, maybe time out" oracle.
// Implementations must honour Request.Timeout and map deadline expiry to
// ErrTimeout.
type Reasoner interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Snippet is one ranked retrieval result. The workflow depends only on
// presence/absence and content, never on the backend's internal ranking.
type Snippet struct {
	Content  string
	Metadata map[string]string
	Score    float64
}

// Retriever is the "search, get ranked snippets or nothing" oracle.
// May return an empty slice; may be slow.
type Retriever interface {
	Search(ctx context.Context, query string, filters map[string]string) ([]Snippet, error)
}

// IsTimeout reports whether err represents a capability timeout, including
// raw context deadline expiry from an adapter that didn't translate it.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
