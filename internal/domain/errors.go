package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can pick a fallback without
// inspecting messages.
type ErrorKind string

const (
	// KindConnection means the graph store is unreachable. Fatal for a session.
	KindConnection ErrorKind = "connection"
	// KindResolution means a coordinate or id could not be mapped to a vertex.
	KindResolution ErrorKind = "resolution"
	// KindQuery means the store rejected or could not run a query.
	KindQuery ErrorKind = "query"
	// KindLookup means an external address or location service failed.
	KindLookup ErrorKind = "lookup"
	// KindDataIntegrity flags repaired input such as a missing name.
	KindDataIntegrity ErrorKind = "data_integrity"
)

var (
	ErrNoVerticesAvailable  = errors.New("no vertices available")
	ErrStaleSnapshot        = errors.New("road network snapshot is stale")
	ErrNoGraph              = errors.New("no road network graph for session")
	ErrSourceNotFound       = errors.New("source vertex not found")
	ErrProcedureUnavailable = errors.New("weighted path procedure unavailable")
	ErrNoEdgeWeights        = errors.New("no weighted edges in graph")
)

// Error carries a kind alongside the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain. Unclassified
// errors are reported as query errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrNoVerticesAvailable), errors.Is(err, ErrStaleSnapshot),
		errors.Is(err, ErrNoGraph), errors.Is(err, ErrSourceNotFound):
		return KindResolution
	}
	return KindQuery
}

// IsConnection reports whether err means the store is unreachable.
func IsConnection(err error) bool {
	return err != nil && KindOf(err) == KindConnection
}
