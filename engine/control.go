package engine

import (
	"errors"

	"github.com/mohitkumar/strand/bus"
	"github.com/mohitkumar/strand/clock"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"go.uber.org/zap"
)

// Control is the operator side of the engine. Commands are enqueued on the
// input bus as ctrl messages so they run on the key worker owning the
// thread.
type Control struct {
	input   bus.MessageBus
	storage persistence.ThreadStorage
	source  clock.Source
	sender  string
}

func NewControl(input bus.MessageBus, storage persistence.ThreadStorage, source clock.Source, sender string) *Control {
	return &Control{
		input:   input,
		storage: storage,
		source:  source,
		sender:  sender,
	}
}

func (c *Control) GetThread(activityID int, domainID string) (*model.ActivityThread, error) {
	thread, err := c.storage.Get(activityID, domainID)
	if err != nil {
		var nf persistence.NotFoundError
		if errors.As(err, &nf) {
			return nil, newScheduleError(ThreadNotFound, "no thread %s", model.ThreadKey(activityID, domainID))
		}
		return nil, err
	}
	return thread, nil
}

func (c *Control) ListThreads(activityID int) ([]*model.ActivityThread, error) {
	return c.storage.List(activityID)
}

func (c *Control) Pause(activityID int, domainID string) error {
	return c.send(activityID, domainID, model.PauseCommand, nil)
}

func (c *Control) Continue(activityID int, domainID string) error {
	return c.send(activityID, domainID, model.ContinueCommand, nil)
}

func (c *Control) Kill(activityID int, domainID string) error {
	return c.send(activityID, domainID, model.KillCommand, nil)
}

func (c *Control) Repair(activityID int, domainID string, args model.RepairArgs) error {
	if _, err := model.RepairArgsFromMap(args.ToMap()); err != nil {
		return newScheduleError(UnknownRepairCtrl, "%s", err.Error())
	}
	return c.send(activityID, domainID, model.RepairCommand, args.ToMap())
}

// PostEvent writes a generic event to the input bus and returns its id.
func (c *Control) PostEvent(eventType string, sender string, attributes map[string]any) (string, error) {
	if len(sender) == 0 {
		sender = c.sender
	}
	msg := model.NewEvent(eventType, sender, "", attributes, clock.Millis(c.source))
	if err := c.input.Write(msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (c *Control) send(activityID int, domainID string, command string, args map[string]any) error {
	if _, err := c.GetThread(activityID, domainID); err != nil {
		return err
	}
	msg := model.NewCtrlMessage(activityID, domainID, command, args, c.sender, clock.Millis(c.source))
	if err := c.input.Write(msg); err != nil {
		return err
	}
	logger.Info("ctrl command queued", zap.Int("activity", activityID), zap.String("domain", domainID),
		zap.String("command", command))
	return nil
}
