package action

import (
	"errors"

	"github.com/mohitkumar/strand/bus"
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/service"
	"go.uber.org/zap"
)

const serviceType = "service"

// serviceFactory backs both the explicit "service" type, naming the service
// in args.service, and action types equal to a registered service name.
var serviceFactory = Factory{
	Type: serviceType,
	Kind: ASYNC,
	New: func(def *definition.ActionDefinition) Action {
		name := def.Type
		if def.Type == serviceType {
			name = def.StringArg("service")
		}
		return &serviceAction{baseAction: newBaseAction(def), service: name}
	},
}

var _ AsyncAction = new(serviceAction)

// serviceAction sends its rendered request argument to a service over the
// service's bus and waits for the response addressed back to it.
type serviceAction struct {
	baseAction
	service string
}

func (a *serviceAction) SendRequest(env *Env) error {
	_, mb, err := env.Services.Resolve(a.service)
	if err != nil {
		return toRuntimeError(err)
	}
	args, err := env.Args(a.def, nil)
	if err != nil {
		return err
	}
	id := beginRequest(env, a.def.Name)
	req := model.NewServiceRequest(env.Thread, a.def.Name, env.ServiceName, a.service, args["request"], !a.def.Await, env.Now())
	req.Attributes[requestIDAttr] = id
	if err := mb.Write(req); err != nil {
		return toRuntimeError(err)
	}
	logger.Debug("service request sent",
		zap.String("thread", env.Thread.Key()),
		zap.String("action", a.def.Name),
		zap.String("service", a.service),
		zap.String("bus", mb.Name()))
	timeout, ok, err := millisArg(args, "timeout")
	if err != nil {
		return err
	}
	if ok && a.def.Await {
		return registerTimer(env, a.def.Name, env.Now()+timeout, id)
	}
	return nil
}

func (a *serviceAction) HandleResponse(env *Env, msg model.Message) (model.Result, error) {
	if !a.addressedTo(env, msg) || !currentRequest(env, a.def.Name, msg) {
		return model.Ignore(), nil
	}
	switch msg.Type {
	case model.ClockMessageType:
		return model.Timeout(), nil
	case model.ServiceResponseMessageType:
		return msg.ResponseResult(), nil
	}
	return model.Ignore(), nil
}

func toRuntimeError(err error) error {
	var snf service.ServiceNotFoundError
	var bnf service.BusNotFoundError
	var bu bus.UnavailableError
	switch {
	case errors.As(err, &snf):
		return newRuntimeError(ServiceNotFound, "%s", snf.Error())
	case errors.As(err, &bnf):
		return newRuntimeError(BusNotFound, "%s", bnf.Error())
	case errors.As(err, &bu):
		return newRuntimeError(BusUnavailable, "%s", bu.Error())
	}
	return err
}
