package llm

import "fmt"

// ErrorKind classifies upstream generation failures. Callers handle every
// kind the same way at the user-facing boundary; the kind is kept for logs.
type ErrorKind string

const (
	KindTransport       ErrorKind = "transport"
	KindRateLimit       ErrorKind = "rate_limit"
	KindMalformedOutput ErrorKind = "malformed_output"
)

// ModelError wraps any failure of a model API call.
type ModelError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("llm: %s (%s)", e.Op, e.Kind)
	}
	return fmt.Sprintf("llm: %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

func newModelError(kind ErrorKind, op string, err error) *ModelError {
	return &ModelError{Kind: kind, Op: op, Err: err}
}

// ParseError reports model output that could not be interpreted against the
// structured contract of an analysis operation.
type ParseError struct {
	Op  string
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("llm: %s: unparseable model output", e.Op)
	}
	return fmt.Sprintf("llm: %s: unparseable model output: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
