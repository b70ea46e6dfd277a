package model

import "fmt"

type Status int

const (
	SUSPENDING Status = iota
	RUNNING
	WAITING
	FINISHED
	FAIL
	PAUSED
	KILLED
)

var statusNames = map[Status]string{
	SUSPENDING: "suspending",
	RUNNING:    "running",
	WAITING:    "waiting",
	FINISHED:   "finished",
	FAIL:       "fail",
	PAUSED:     "paused",
	KILLED:     "killed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

func (s Status) IsTerminal() bool {
	return s == FINISHED || s == FAIL || s == KILLED
}

func StatusFromCode(code int) (Status, bool) {
	st := Status(code)
	_, ok := statusNames[st]
	return st, ok
}

type ActivityStatus string

const (
	ActivityCommon ActivityStatus = "common"
	ActivityPaused ActivityStatus = "paused"
	ActivityKilled ActivityStatus = "killed"
)

func ValidateActivityStatus(s string) (ActivityStatus, error) {
	switch ActivityStatus(s) {
	case ActivityCommon, ActivityPaused, ActivityKilled:
		return ActivityStatus(s), nil
	}
	return "", fmt.Errorf("invalid activity status %s", s)
}
