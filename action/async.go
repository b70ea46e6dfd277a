package action

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/mohitkumar/strand/model"
)

const requestIDAttr = model.RequestIDAttr

func requestVar(action string) string {
	return fmt.Sprintf("$%s.req", action)
}

// beginRequest tags a new request of the current action so messages left
// over from an earlier attempt can be told apart.
func beginRequest(env *Env, action string) string {
	id := uuid.NewString()
	env.Thread.PutContextVar(requestVar(action), id)
	return id
}

// currentRequest reports whether msg belongs to the latest request of the
// action. Messages that do not carry a request id are accepted.
func currentRequest(env *Env, action string, msg model.Message) bool {
	id := msg.StringAttr(requestIDAttr)
	if len(id) == 0 {
		return true
	}
	cur, _ := env.Thread.ContextVar(requestVar(action))
	return cur == id
}

func registerTimer(env *Env, action string, fireAt int64, requestID string) error {
	return env.Clock.RegisterTimer(fireAt, env.Thread.ActivityID, env.Thread.DomainID, action,
		map[string]any{requestIDAttr: requestID})
}

// millisArg reads a duration or timestamp argument given in milliseconds.
func millisArg(args map[string]any, name string) (int64, bool, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), true, nil
	case int64:
		return n, true, nil
	case float64:
		return int64(n), true, nil
	}
	return 0, false, newRuntimeError(InvalidArgument, "argument %s must be a number of milliseconds, got %T", name, v)
}
