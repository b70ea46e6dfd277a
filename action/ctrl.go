package action

import (
	"fmt"
	"strconv"
	"strings"
)

type CtrlType string

const (
	CALL      CtrlType = "CALL"
	FAIL      CtrlType = "FAIL"
	FINISH    CtrlType = "FINISH"
	WAITING   CtrlType = "WAITING"
	RETRY     CtrlType = "RETRY"
	REPAIRING CtrlType = "REPAIRING"
)

const (
	RetryFailure = "retry_failure"
	NoCtrl       = "no_ctrl"
)

// CtrlInfo is a resolved transition together with the context patch that
// goes with it. Fallback is only set for RETRY.
type CtrlInfo struct {
	Type          CtrlType
	NextStep      string
	FailureReason string
	Problem       string
	RetryCount    int
	Fallback      *CtrlInfo
	ContextVars   map[string]any
}

func (c CtrlInfo) String() string {
	switch c.Type {
	case CALL:
		return fmt.Sprintf("CALL %s", c.NextStep)
	case FAIL:
		if len(c.FailureReason) == 0 {
			return "FAIL"
		}
		return fmt.Sprintf("FAIL because %s", c.FailureReason)
	case RETRY:
		return fmt.Sprintf("RETRY %d %s", c.RetryCount, c.Fallback.String())
	case REPAIRING:
		return fmt.Sprintf("REPAIRING %s", c.Problem)
	}
	return string(c.Type)
}

func Fail(reason string, vars map[string]any) CtrlInfo {
	return CtrlInfo{Type: FAIL, FailureReason: reason, ContextVars: vars}
}

// ParseCtrl parses a transition token such as "CALL B", "FAIL because x",
// "RETRY 3 CALL C" or "REPAIRING problem". Keywords are case insensitive.
func ParseCtrl(token string, vars map[string]any) (CtrlInfo, error) {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return CtrlInfo{}, newRuntimeError(InvalidCtrl, "empty ctrl")
	}
	switch CtrlType(strings.ToUpper(fields[0])) {
	case CALL:
		if len(fields) != 2 {
			return CtrlInfo{}, newRuntimeError(InvalidCtrl, "CALL needs exactly one step: %s", token)
		}
		return CtrlInfo{Type: CALL, NextStep: fields[1], ContextVars: vars}, nil
	case FAIL:
		rest := fields[1:]
		if len(rest) > 0 && strings.EqualFold(rest[0], "because") {
			rest = rest[1:]
		}
		return Fail(strings.Join(rest, " "), vars), nil
	case FINISH:
		if len(fields) != 1 {
			return CtrlInfo{}, newRuntimeError(InvalidCtrl, "FINISH takes no argument: %s", token)
		}
		return CtrlInfo{Type: FINISH, ContextVars: vars}, nil
	case WAITING:
		if len(fields) != 1 {
			return CtrlInfo{}, newRuntimeError(InvalidCtrl, "WAITING takes no argument: %s", token)
		}
		return CtrlInfo{Type: WAITING, ContextVars: vars}, nil
	case RETRY:
		return parseRetry(token, fields, vars)
	case REPAIRING:
		problem := strings.Join(fields[1:], " ")
		if len(problem) == 0 {
			problem = "repairing"
		}
		return CtrlInfo{Type: REPAIRING, Problem: problem, ContextVars: vars}, nil
	}
	return CtrlInfo{}, newRuntimeError(InvalidCtrl, "unknown ctrl: %s", token)
}

func parseRetry(token string, fields []string, vars map[string]any) (CtrlInfo, error) {
	if len(fields) < 2 {
		return CtrlInfo{}, newRuntimeError(InvalidCtrl, "RETRY needs a count: %s", token)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 0 {
		return CtrlInfo{}, newRuntimeError(InvalidCtrl, "invalid retry count: %s", token)
	}
	fallback := Fail(RetryFailure, nil)
	if len(fields) > 2 {
		fallback, err = ParseCtrl(strings.Join(fields[2:], " "), nil)
		if err != nil {
			return CtrlInfo{}, err
		}
		if fallback.Type == RETRY {
			return CtrlInfo{}, newRuntimeError(InvalidCtrl, "RETRY can not fall back to RETRY: %s", token)
		}
	}
	return CtrlInfo{Type: RETRY, RetryCount: n, Fallback: &fallback, ContextVars: vars}, nil
}
