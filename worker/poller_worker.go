package worker

import (
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/strand/bus"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"go.uber.org/zap"
)

const UnknownAction = "unknown_action"

type pollerWorker struct {
	worker                   *WorkerWrapper
	serviceName              string
	replies                  bus.MessageBus
	maxRetryBeforeResultPush int
}

func (pw *pollerWorker) execute(req model.Message) model.Message {
	args, _ := req.Attributes["args"].(map[string]any)
	var result model.Result
	data, err := pw.worker.Execute(args)
	if err != nil {
		var ae ActionError
		if errors.As(err, &ae) {
			result = model.Fail(ae.Code, ae.Message)
		} else {
			result = model.Fail("error", err.Error())
		}
	} else {
		result = model.OkWithData(data)
	}
	return response(req, pw.serviceName, result)
}

func response(req model.Message, serviceName string, result model.Result) model.Message {
	res := model.NewServiceResponse(req.ActivityID, req.DomainID, req.Action, serviceName, req.Sender, result, time.Now().UnixMilli())
	if id := req.StringAttr(model.RequestIDAttr); id != "" {
		res.Attributes[model.RequestIDAttr] = id
	}
	return res
}

func (pw *pollerWorker) sendResponse(res model.Message) error {
	err := backoff.Retry(func() error {
		err := pw.replies.Write(res)
		var bu bus.UnavailableError
		if err != nil && !errors.As(err, &bu) {
			return backoff.Permanent(err)
		}
		return err
	}, pw.worker.backOff(pw.maxRetryBeforeResultPush))
	if err != nil {
		return fmt.Errorf("push response of %s: %w", res.Action, err)
	}
	return nil
}

func (pw *pollerWorker) handle(req model.Message) {
	res := pw.execute(req)
	if ignore, _ := req.Attributes["ignore_result"].(bool); ignore {
		return
	}
	if err := pw.sendResponse(res); err != nil {
		logger.Error("error sending action execution response", zap.String("action", pw.worker.GetName()), zap.Error(err))
	}
}
