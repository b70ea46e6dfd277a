package worker

import "fmt"

// Worker serves the requests one service receives for a single action name.
type Worker interface {
	Execute(map[string]any) (map[string]any, error)
	GetName() string
}

// ActionError is returned by a worker to fail the request with a specific
// error code. Any other error fails it with code "error".
type ActionError struct {
	Code    string
	Message string
}

func (e ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
