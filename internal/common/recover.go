// -----------------------------------------------------------------------
// Panic containment - converts panics in isolated units of work to errors
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"runtime"

	"github.com/ternarybob/arbor"
)

// PanicError is returned by SafeCall when fn panicked.
type PanicError struct {
	Name  string
	Value interface{}
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// SafeCall runs fn and converts a panic into a *PanicError.
// The panic is logged with its stack when a logger is supplied.
//
// Example:
//
//	err := common.SafeCall(logger, "layer:trials", func() error {
//	    return runTrials(ctx)
//	})
func SafeCall(logger arbor.ILogger, name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			stackTrace := string(buf[:n])

			if logger != nil {
				logger.Error().
					Str("unit", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", stackTrace).
					Msg("Recovered from panic - continuing")
			}

			err = &PanicError{Name: name, Value: r, Stack: stackTrace}
		}
	}()

	return fn()
}
