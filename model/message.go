package model

import (
	"github.com/google/uuid"
)

const (
	ServiceRequestMessageType  = "req"
	ServiceResponseMessageType = "res"
	ClockMessageType           = "clock"
	CtrlMessageType            = "thread_ctrl"
)

// clock message actions reserved by the scheduler
const SuspendClockAction = "$suspend"

// RequestIDAttr tags a service request. Responses and timers echo it back.
const RequestIDAttr = "request_id"

// Message is the unit carried by message buses. Generic events only use the
// common fields, service and clock messages also address an instance and an
// action by name.
type Message struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Sender     string         `json:"sender"`
	Receiver   string         `json:"receiver"`
	Timestamp  int64          `json:"timestamp"`
	Attributes map[string]any `json:"attr,omitempty"`
	ActivityID int            `json:"activity_id,omitempty"`
	DomainID   string         `json:"domain_id,omitempty"`
	Action     string         `json:"action,omitempty"`
}

func NewEvent(eventType string, sender string, receiver string, attributes map[string]any, ts int64) Message {
	if attributes == nil {
		attributes = make(map[string]any)
	}
	return Message{
		ID:         uuid.NewString(),
		Type:       eventType,
		Sender:     sender,
		Receiver:   receiver,
		Timestamp:  ts,
		Attributes: attributes,
	}
}

// IsAddressed reports whether the message targets one instance directly.
func (m Message) IsAddressed() bool {
	switch m.Type {
	case ServiceResponseMessageType, ClockMessageType, CtrlMessageType:
		return m.ActivityID != 0 && m.DomainID != ""
	}
	return false
}

func (m Message) Attr(name string) (any, bool) {
	v, ok := m.Attributes[name]
	return v, ok
}

func (m Message) StringAttr(name string) string {
	v, ok := m.Attributes[name]
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ToMap is the view of the message exposed to expressions as "event".
func (m Message) ToMap() map[string]any {
	attrs := m.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return map[string]any{
		"id":          m.ID,
		"type":        m.Type,
		"sender":      m.Sender,
		"receiver":    m.Receiver,
		"timestamp":   m.Timestamp,
		"attr":        attrs,
		"activity_id": m.ActivityID,
		"domain_id":   m.DomainID,
		"action":      m.Action,
	}
}

func NewServiceRequest(thread *ActivityThread, action string, sender string, service string, request any, ignoreResult bool, ts int64) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      ServiceRequestMessageType,
		Sender:    sender,
		Receiver:  service,
		Timestamp: ts,
		Attributes: map[string]any{
			"args":          request,
			"ignore_result": ignoreResult,
		},
		ActivityID: thread.ActivityID,
		DomainID:   thread.DomainID,
		Action:     action,
	}
}

func NewServiceResponse(activityID int, domainID string, action string, sender string, receiver string, result Result, ts int64) Message {
	attrs := map[string]any{
		"status": string(result.Status),
	}
	if result.ErrorCode != "" {
		attrs["error_code"] = result.ErrorCode
	}
	if result.Message != "" {
		attrs["message"] = result.Message
	}
	if result.Data != nil {
		attrs["data"] = result.Data
	}
	return Message{
		ID:         uuid.NewString(),
		Type:       ServiceResponseMessageType,
		Sender:     sender,
		Receiver:   receiver,
		Timestamp:  ts,
		Attributes: attrs,
		ActivityID: activityID,
		DomainID:   domainID,
		Action:     action,
	}
}

// ResponseResult decodes a service response into a Result. Unknown statuses
// are reported as failures.
func (m Message) ResponseResult() Result {
	status := ResultStatus(m.StringAttr("status"))
	res := Result{
		Status:    status,
		ErrorCode: m.StringAttr("error_code"),
		Message:   m.StringAttr("message"),
	}
	if data, ok := m.Attributes["data"].(map[string]any); ok {
		res.Data = data
	}
	switch status {
	case ResultOK, ResultFail, ResultTimeout:
	default:
		res.Status = ResultFail
		if res.ErrorCode == "" {
			res.ErrorCode = "invalid_response"
		}
	}
	return res
}

func NewClockMessage(fireAt int64, activityID int, domainID string, action string, attributes map[string]any) Message {
	return Message{
		ID:         uuid.NewString(),
		Type:       ClockMessageType,
		Sender:     "clock",
		Timestamp:  fireAt,
		Attributes: attributes,
		ActivityID: activityID,
		DomainID:   domainID,
		Action:     action,
	}
}
