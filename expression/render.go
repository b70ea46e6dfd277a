package expression

import (
	"strings"

	"github.com/mohitkumar/strand/util"
)

// IsExpression reports whether s is written as ${ expr }.
func IsExpression(s string) bool {
	t := strings.TrimSpace(s)
	return strings.HasPrefix(t, "${") && strings.HasSuffix(t, "}")
}

// Unwrap returns the expression inside ${ }.
func Unwrap(s string) string {
	t := strings.TrimSpace(s)
	return strings.TrimSpace(t[2 : len(t)-1])
}

// Render produces the runtime value of a definition argument: ${ expr }
// strings are evaluated, {$.path} tokens are looked up, maps and lists are
// rendered recursively and everything else is returned as is.
func Render(ev Evaluator, value any, root map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		if IsExpression(v) {
			return ev.Eval(Unwrap(v), root)
		}
		return util.ResolveString(root, v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			r, err := Render(ev, item, root)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			r, err := Render(ev, item, root)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, nil
	default:
		return value, nil
	}
}

// CompileArgs checks every ${ expr } found in a definition argument tree.
func CompileArgs(ev Evaluator, value any) error {
	switch v := value.(type) {
	case string:
		if IsExpression(v) {
			return ev.Compile(Unwrap(v))
		}
	case map[string]any:
		for _, item := range v {
			if err := CompileArgs(ev, item); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range v {
			if err := CompileArgs(ev, item); err != nil {
				return err
			}
		}
	}
	return nil
}
