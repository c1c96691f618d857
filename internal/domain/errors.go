package domain

import "fmt"

// The pipeline distinguishes fatal failures, which abort the run, from
// per-variable or per-artifact failures, which are logged and skipped.
// Each class below wraps an underlying cause and participates in
// errors.Is/errors.As chains.

// InputError reports invalid caller input (geometry file, empty variable
// or hour selection). Always raised before any remote call. Fatal.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return fmt.Sprintf("input: %v", e.Err) }
func (e *InputError) Unwrap() error { return e.Err }

// RetrievalError reports a failed remote data request (network, auth,
// provider rejection). Fatal, never retried.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string { return fmt.Sprintf("retrieval: %v", e.Err) }
func (e *RetrievalError) Unwrap() error { return e.Err }

// DecodeError reports an unreadable or structurally invalid downloaded
// dataset (missing axes, unrecognized time dimension). Fatal.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// VariableNotFoundError reports a requested variable absent from the
// decoded dataset under both its long and short name. Recovered locally:
// the variable is skipped and the run continues.
type VariableNotFoundError struct {
	Variable string
}

func (e *VariableNotFoundError) Error() string {
	return fmt.Sprintf("variable %q not present in dataset", e.Variable)
}

// GeometryError reports a region that intersects no grid cell. Recovered
// locally; the emitters decide the fallback behavior per output mode.
type GeometryError struct {
	Err error
}

func (e *GeometryError) Error() string { return fmt.Sprintf("geometry: %v", e.Err) }
func (e *GeometryError) Unwrap() error { return e.Err }

// WriteError reports a failed output artifact write. Logged per artifact;
// remaining artifacts are still attempted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write %s: %v", e.Path, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }
