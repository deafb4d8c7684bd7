package workflow

import (
	"errors"
	"fmt"
)

// Error kinds returned by the engine and both stores. Callers match them with
// errors.Is; the wrapped message carries the user facing reason.
var (
	ErrValidation         = errors.New("validation failed")
	ErrNotFound           = errors.New("not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrAuthorization      = errors.New("not authorized")
	ErrConflict           = errors.New("conflict")
)

func failf(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Reason strips the kind prefix and returns the message meant for the user.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrPreconditionFailed, ErrAuthorization, ErrConflict} {
		prefix := kind.Error() + ": "
		if errors.Is(err, kind) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}
