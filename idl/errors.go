package idl

import "fmt"

// TransientError wraps a fetch failure that survived the retry budget.
// The orchestrator records it per target; it never aborts a whole run.
type TransientError struct {
	Address  string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("idl: fetch %s failed after %d attempts: %v", e.Address, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ParseError indicates a malformed account payload: truncated header,
// bad declared length, inflate failure, invalid JSON, or a definition
// that fails shape validation. Treated as retryable by the Reader.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("idl: parse: %s: %v", e.Reason, e.Err)
	}
	return "idl: parse: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }
