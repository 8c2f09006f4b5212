package workflow

import (
	"errors"
	"fmt"
)

// Fault kinds.
var (
	// ErrUnknownStatus indicates a status value outside the known workflow (schema drift).
	ErrUnknownStatus = errors.New("unknown status")
	// ErrInvariantViolation indicates a record ended in NO_COMPONENT while routed to a component.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Fault is a per-record processing failure.
type Fault struct {
	RecordID int64  `json:"record_id" yaml:"record_id"`
	Kind     string `json:"kind"      yaml:"kind"`
	Detail   string `json:"detail"    yaml:"detail"`

	err error
}

// NewFault wraps err as a fault of record id.
func NewFault(recordID int64, err error) *Fault {
	return &Fault{
		RecordID: recordID,
		Kind:     faultKind(err),
		Detail:   err.Error(),
		err:      err,
	}
}

// Error implements error.
func (f *Fault) Error() string {
	return fmt.Sprintf("record %d: %s", f.RecordID, f.Detail)
}

// Unwrap returns the underlying fault kind.
func (f *Fault) Unwrap() error {
	return f.err
}

func faultKind(err error) string {
	switch {
	case errors.Is(err, ErrUnknownStatus):
		return "unknown_status"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	default:
		return "internal"
	}
}
