package engine

import "fmt"

const (
	ErrorCode          = "error"
	InvalidStatus      = "invalid_status"
	BpsNotFound        = "bps_not_found"
	InvalidBps         = "invalid_bps"
	DefNotEnable       = "def_not_enable"
	ActionNotFound     = "action_not_found"
	UnknownRepairCtrl  = "unknown_repair_ctrl"
	AlreadyKilled      = "already_killed"
	ThreadNotFound     = "thread_not_found"
	ActivityNotRunning = "activity_not_running"
)

// ScheduleError is returned when a thread can not be scheduled as asked. The
// thread is left unchanged.
type ScheduleError struct {
	Code    string
	Message string
}

func (e ScheduleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newScheduleError(code string, format string, args ...any) ScheduleError {
	return ScheduleError{Code: code, Message: fmt.Sprintf(format, args...)}
}
