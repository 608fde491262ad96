package dialog

import (
	"errors"
	"fmt"
)

// ErrDialogOrder is matched by every *OrderError.
var ErrDialogOrder = errors.New("dialog order")

// OrderError reports a dialog that does not follow the
// [system] user (assistant user)* pattern.
type OrderError struct {
	// Index of the offending message after the system turn was folded, or -1
	// when the dialog as a whole is unusable.
	Index int
	Role  Role
	Want  Role
}

func (e *OrderError) Error() string {
	if e.Index < 0 {
		return "dialog must contain at least one user message"
	}
	return fmt.Sprintf(
		"message %d has role %q, want %q: dialogs support 'system', 'user' and 'assistant' roles, starting with 'system', then 'user' and alternating (u/a/u/a/u...)",
		e.Index, e.Role, e.Want,
	)
}

func (e *OrderError) Unwrap() error { return ErrDialogOrder }
