package action

import "fmt"

const (
	InvalidArgument = "invalid_argument"
	ServiceNotFound = "service_not_found"
	BusNotFound     = "bus_not_found"
	BusUnavailable  = "bus_unavailable"
	AssertionFailed = "assertion_failed"
	InvalidCtrl     = "invalid_ctrl"
)

// RuntimeError is raised by an action while executing. The scheduler moves
// the thread into repair when it sees one.
type RuntimeError struct {
	Code    string
	Message string
}

func (e RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newRuntimeError(code string, format string, args ...any) RuntimeError {
	return RuntimeError{Code: code, Message: fmt.Sprintf(format, args...)}
}
