package model

type ResultStatus string

const (
	ResultOK      ResultStatus = "ok"
	ResultFail    ResultStatus = "fail"
	ResultIgnore  ResultStatus = "ignore"
	ResultTimeout ResultStatus = "timeout"
)

// Result is the outcome of one action execution attempt. An ignore result
// means the inbound message was not relevant to the awaited action.
type Result struct {
	Status    ResultStatus   `json:"status"`
	ErrorCode string         `json:"error_code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

func Ok() Result {
	return Result{Status: ResultOK}
}

func OkWithData(data map[string]any) Result {
	return Result{Status: ResultOK, Data: data}
}

func Fail(errorCode string, message string) Result {
	return Result{Status: ResultFail, ErrorCode: errorCode, Message: message}
}

func Ignore() Result {
	return Result{Status: ResultIgnore}
}

func Timeout() Result {
	return Result{Status: ResultTimeout}
}

func (r Result) IsOk() bool {
	return r.Status == ResultOK
}

func (r Result) IsFail() bool {
	return r.Status == ResultFail
}

func (r Result) IsIgnore() bool {
	return r.Status == ResultIgnore
}

func (r Result) IsTimeout() bool {
	return r.Status == ResultTimeout
}

// DataString returns a string value from the result payload.
func (r Result) DataString(key string) string {
	if r.Data == nil {
		return ""
	}
	s, _ := r.Data[key].(string)
	return s
}
