package model

import "fmt"

// Context variables reserved by the scheduler.
const (
	InRepairVar         = "_RP"
	RepairProblemVar    = "_RPP"
	FaultProblemVar     = "_RPF"
	BeforePauseStatus   = "_BPS"
	FailReasonVar       = "_FR"
	retryCountVarFormat = "$%s.retry"
)

// ActivityThread is one running instance of an activity, keyed by activity id
// and domain id. Only the owning key worker mutates it.
type ActivityThread struct {
	ActivityID        int            `json:"activity_id"`
	DomainID          string         `json:"domain_id"`
	DefinitionName    string         `json:"definition_name"`
	DefinitionVersion string         `json:"definition_version"`
	CurrentAction     string         `json:"current_action"`
	Status            Status         `json:"status"`
	Context           map[string]any `json:"context"`
	CreatedOn         int64          `json:"created_on"`
	UpdatedOn         int64          `json:"updated_on"`
}

func NewActivityThread(activity *Activity, defName string, defVersion string, domainID string, entry string, ts int64, vars map[string]any) *ActivityThread {
	ctx := make(map[string]any, len(vars))
	for k, v := range vars {
		ctx[k] = v
	}
	return &ActivityThread{
		ActivityID:        activity.ID,
		DomainID:          domainID,
		DefinitionName:    defName,
		DefinitionVersion: defVersion,
		CurrentAction:     entry,
		Status:            SUSPENDING,
		Context:           ctx,
		CreatedOn:         ts,
		UpdatedOn:         ts,
	}
}

func (t *ActivityThread) Key() string {
	return ThreadKey(t.ActivityID, t.DomainID)
}

func ThreadKey(activityID int, domainID string) string {
	return fmt.Sprintf("%d:%s", activityID, domainID)
}

func (t *ActivityThread) PutContextVar(name string, value any) {
	if t.Context == nil {
		t.Context = make(map[string]any)
	}
	t.Context[name] = value
}

func (t *ActivityThread) PutContextVars(vars map[string]any) {
	for k, v := range vars {
		t.PutContextVar(k, v)
	}
}

func (t *ActivityThread) RemoveContextVar(name string) {
	delete(t.Context, name)
}

func (t *ActivityThread) ContextVar(name string) (any, bool) {
	v, ok := t.Context[name]
	return v, ok
}

func (t *ActivityThread) InRepair() bool {
	v, _ := t.Context[InRepairVar].(bool)
	return t.Status == WAITING && v
}

func (t *ActivityThread) RetryCountVar() string {
	return fmt.Sprintf(retryCountVarFormat, t.CurrentAction)
}

// Clone returns a copy whose context can be mutated independently.
func (t *ActivityThread) Clone() *ActivityThread {
	c := *t
	c.Context = make(map[string]any, len(t.Context))
	for k, v := range t.Context {
		c.Context[k] = v
	}
	return &c
}

func (t *ActivityThread) ToMap() map[string]any {
	return map[string]any{
		"activity_id":        t.ActivityID,
		"domain_id":          t.DomainID,
		"definition_name":    t.DefinitionName,
		"definition_version": t.DefinitionVersion,
		"current_action":     t.CurrentAction,
		"status":             t.Status.String(),
		"created_on":         t.CreatedOn,
		"updated_on":         t.UpdatedOn,
	}
}
