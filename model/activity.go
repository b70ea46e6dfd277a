package model

// Activity is a deployed and configured use of a definition. It can spawn
// many threads, one per domain id.
type Activity struct {
	ID             int            `json:"id"`
	DisplayName    string         `json:"display_name"`
	DefinitionName string         `json:"definition_name"`
	Status         ActivityStatus `json:"status"`
	Config         map[string]any `json:"config,omitempty"`
	CreatedOn      int64          `json:"created_on"`
	UpdatedOn      int64          `json:"updated_on"`
}

func (a *Activity) IsPaused() bool {
	return a.Status == ActivityPaused
}

func (a *Activity) ToMap() map[string]any {
	cfg := a.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	return map[string]any{
		"id":              a.ID,
		"display_name":    a.DisplayName,
		"definition_name": a.DefinitionName,
		"status":          string(a.Status),
		"config":          cfg,
	}
}

// ConfigBool reads a boolean flag from the activity config.
func (a *Activity) ConfigBool(key string, def bool) bool {
	if a.Config == nil {
		return def
	}
	v, ok := a.Config[key].(bool)
	if !ok {
		return def
	}
	return v
}

// ConfigInt reads an integer from the activity config. JSON numbers decode as
// float64 so both are accepted.
func (a *Activity) ConfigInt(key string, def int) int {
	if a.Config == nil {
		return def
	}
	return ToInt(a.Config[key], def)
}

func ToInt(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	}
	return def
}
