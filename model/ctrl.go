package model

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	KillCommand     = "kill"
	PauseCommand    = "pause"
	ContinueCommand = "continue"
	RepairCommand   = "repair"
)

type RepairDirective string

const (
	RepairWaiting RepairDirective = "waiting"
	RepairGoto    RepairDirective = "goto"
	RepairRetry   RepairDirective = "retry"
)

// RepairArgs carries an operator repair command.
type RepairArgs struct {
	Ctrl        RepairDirective `json:"ctrl"`
	ContextVars map[string]any  `json:"context_vars,omitempty"`
	Goto        string          `json:"goto,omitempty"`
}

func (r RepairArgs) ToMap() map[string]any {
	vars := r.ContextVars
	if vars == nil {
		vars = map[string]any{}
	}
	return map[string]any{
		"ctrl":         string(r.Ctrl),
		"context_vars": vars,
		"goto":         r.Goto,
	}
}

func RepairArgsFromMap(args map[string]any) (RepairArgs, error) {
	ctrl, _ := args["ctrl"].(string)
	switch RepairDirective(ctrl) {
	case RepairWaiting, RepairGoto, RepairRetry:
	default:
		return RepairArgs{}, fmt.Errorf("unknown repair ctrl: %s", ctrl)
	}
	ra := RepairArgs{Ctrl: RepairDirective(ctrl)}
	if vars, ok := args["context_vars"].(map[string]any); ok {
		ra.ContextVars = vars
	}
	ra.Goto, _ = args["goto"].(string)
	return ra, nil
}

func NewCtrlMessage(activityID int, domainID string, command string, args map[string]any, sender string, ts int64) Message {
	if args == nil {
		args = map[string]any{}
	}
	return Message{
		ID:        uuid.NewString(),
		Type:      CtrlMessageType,
		Sender:    sender,
		Timestamp: ts,
		Attributes: map[string]any{
			"command": command,
			"args":    args,
		},
		ActivityID: activityID,
		DomainID:   domainID,
	}
}

func (m Message) Command() string {
	return m.StringAttr("command")
}

func (m Message) CommandArgs() map[string]any {
	args, _ := m.Attributes["args"].(map[string]any)
	return args
}
