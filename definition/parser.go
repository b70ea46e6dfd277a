package definition

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the serialized form of a definition as written by users and
// kept by the metadata storage.
type Document struct {
	Name             string           `yaml:"name" json:"name"`
	Version          string           `yaml:"version" json:"version"`
	DomainIDStrategy string           `yaml:"domain_id_strategy" json:"domain_id_strategy"`
	Description      string           `yaml:"description,omitempty" json:"description,omitempty"`
	Config           map[string]any   `yaml:"config,omitempty" json:"config,omitempty"`
	Enable           bool             `yaml:"enable" json:"enable"`
	Trigger          TriggerDocument  `yaml:"trigger" json:"trigger"`
	Actions          []ActionDocument `yaml:"actions" json:"actions"`
	OnFinished       string           `yaml:"on_finished,omitempty" json:"on_finished,omitempty"`
	OnFailed         string           `yaml:"on_failed,omitempty" json:"on_failed,omitempty"`
	CreatedOn        int64            `yaml:"created_on,omitempty" json:"created_on,omitempty"`
}

type TriggerDocument struct {
	Type        string            `yaml:"type" json:"type"`
	Args        map[string]any    `yaml:"args,omitempty" json:"args,omitempty"`
	ContextVars map[string]string `yaml:"context_vars,omitempty" json:"context_vars,omitempty"`
}

type ActionDocument struct {
	Name               string              `yaml:"name" json:"name"`
	Type               string              `yaml:"type" json:"type"`
	Args               map[string]any      `yaml:"args,omitempty" json:"args,omitempty"`
	Ctrl               []CtrlDocument      `yaml:"ctrl,omitempty" json:"ctrl,omitempty"`
	DefaultCtrl        string              `yaml:"default_ctrl,omitempty" json:"default_ctrl,omitempty"`
	DefaultContextVars map[string]string   `yaml:"default_context_vars,omitempty" json:"default_context_vars,omitempty"`
	Assert             []AssertionDocument `yaml:"assert,omitempty" json:"assert,omitempty"`
	Await              *bool               `yaml:"await,omitempty" json:"await,omitempty"`
}

type CtrlDocument struct {
	When        string            `yaml:"when" json:"when"`
	Then        string            `yaml:"then" json:"then"`
	ContextVars map[string]string `yaml:"context_vars,omitempty" json:"context_vars,omitempty"`
}

type AssertionDocument struct {
	Expression string `yaml:"expression" json:"expression"`
	Message    string `yaml:"message,omitempty" json:"message,omitempty"`
}

// Parse reads a YAML (or JSON) definition document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error parsing definition: %w", err)
	}
	doc.Config = normalizeMap(doc.Config)
	doc.Trigger.Args = normalizeMap(doc.Trigger.Args)
	for i := range doc.Actions {
		doc.Actions[i].Args = normalizeMap(doc.Actions[i].Args)
	}
	return &doc, nil
}

// normalizeMap converts nested map[interface{}]interface{} values left by
// yaml into map[string]any so expressions and jsonpath can walk them.
func normalizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprintf("%v", k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
