package engine

import (
	"github.com/mohitkumar/strand/model"
)

type RepairCause string

const (
	RepairByCtrl  RepairCause = "ctrl"
	RepairByFault RepairCause = "fault"
)

// StatusListener is told about thread lifecycle events. Calls happen on the
// key worker owning the thread and must not block.
type StatusListener interface {
	OnSpawn(thread *model.ActivityThread)
	OnStatusChange(thread *model.ActivityThread, from model.Status)
	OnRepair(thread *model.ActivityThread, cause RepairCause, problem string)
	OnScheduleError(thread *model.ActivityThread, err error)
}

type listeners []StatusListener

func (l listeners) spawn(thread *model.ActivityThread) {
	for _, s := range l {
		s.OnSpawn(thread)
	}
}

func (l listeners) statusChange(thread *model.ActivityThread, from model.Status) {
	for _, s := range l {
		s.OnStatusChange(thread, from)
	}
}

func (l listeners) repair(thread *model.ActivityThread, cause RepairCause, problem string) {
	for _, s := range l {
		s.OnRepair(thread, cause, problem)
	}
}

func (l listeners) scheduleError(thread *model.ActivityThread, err error) {
	for _, s := range l {
		s.OnScheduleError(thread, err)
	}
}
