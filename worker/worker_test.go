package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/strand/bus"
	"github.com/mohitkumar/strand/model"
	"github.com/stretchr/testify/require"
)

type flakyBus struct {
	bus.MessageBus
	failures int
}

func (b *flakyBus) Write(msg model.Message) error {
	if b.failures > 0 {
		b.failures--
		return bus.UnavailableError{Bus: b.Name(), Message: "down"}
	}
	return b.MessageBus.Write(msg)
}

type pollerFixture struct {
	requests bus.MessageBus
	replies  bus.MessageBus
	poller   *TaskPoller
}

func newPollerFixture(t *testing.T, replies bus.MessageBus) *pollerFixture {
	requests := bus.NewMemoryBus("payments-bus")
	if replies == nil {
		replies = bus.NewMemoryBus("input")
	}
	tp := NewTaskPoller(WorkerConfiguration{ServiceName: "payments", MaxRetryBeforeResultPush: 3}, requests, replies, &sync.WaitGroup{})
	require.NoError(t, tp.RegisterWorker(NewDefaultWorker("charge", func(args map[string]any) (map[string]any, error) {
		if args["amount"] == nil {
			return nil, ActionError{Code: "no_amount", Message: "amount missing"}
		}
		if args["amount"] == "boom" {
			return nil, errors.New("boom")
		}
		return map[string]any{"charged": args["amount"]}, nil
	}).WithRetryInterval(time.Millisecond)))
	return &pollerFixture{requests: requests, replies: replies, poller: tp}
}

func (f *pollerFixture) request(t *testing.T, action string, args map[string]any, ignore bool) model.Message {
	thread := model.NewActivityThread(&model.Activity{ID: 7}, "order", "1", "o-1", action, 1000, nil)
	req := model.NewServiceRequest(thread, action, "strand", "payments", args, ignore, 1000)
	req.Attributes[model.RequestIDAttr] = "req-1"
	require.NoError(t, f.requests.Write(req))
	return req
}

func (f *pollerFixture) poll(t *testing.T) []model.Message {
	_, err := f.poller.Poll()
	require.NoError(t, err)
	replies, err := f.replies.Read(10)
	require.NoError(t, err)
	return replies
}

func TestTaskPoller(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"ok response":           testOkResponse,
		"action error":          testActionError,
		"plain error":           testPlainError,
		"ignore result":         testIgnoreResult,
		"unknown action":        testUnknownAction,
		"other receiver":        testOtherReceiver,
		"retry unavailable bus": testRetryUnavailableBus,
		"give up after retries": testGiveUp,
		"duplicate worker":      testDuplicateWorker,
	} {
		t.Run(scenario, fn)
	}
}

func testOkResponse(t *testing.T) {
	f := newPollerFixture(t, nil)
	f.request(t, "charge", map[string]any{"amount": 12.5}, false)
	replies := f.poll(t)
	require.Len(t, replies, 1)
	res := replies[0]
	require.Equal(t, model.ServiceResponseMessageType, res.Type)
	require.Equal(t, 7, res.ActivityID)
	require.Equal(t, "o-1", res.DomainID)
	require.Equal(t, "charge", res.Action)
	require.Equal(t, "strand", res.Receiver)
	require.Equal(t, "req-1", res.StringAttr(model.RequestIDAttr))
	result := res.ResponseResult()
	require.True(t, result.IsOk())
	require.Equal(t, 12.5, result.Data["charged"])
}

func testActionError(t *testing.T) {
	f := newPollerFixture(t, nil)
	f.request(t, "charge", map[string]any{}, false)
	replies := f.poll(t)
	require.Len(t, replies, 1)
	result := replies[0].ResponseResult()
	require.True(t, result.IsFail())
	require.Equal(t, "no_amount", result.ErrorCode)
}

func testPlainError(t *testing.T) {
	f := newPollerFixture(t, nil)
	f.request(t, "charge", map[string]any{"amount": "boom"}, false)
	result := f.poll(t)[0].ResponseResult()
	require.True(t, result.IsFail())
	require.Equal(t, "error", result.ErrorCode)
	require.Equal(t, "boom", result.Message)
}

func testIgnoreResult(t *testing.T) {
	f := newPollerFixture(t, nil)
	f.request(t, "charge", map[string]any{"amount": 1}, true)
	f.request(t, "refund", map[string]any{"amount": 1}, true)
	require.Empty(t, f.poll(t))
}

func testUnknownAction(t *testing.T) {
	f := newPollerFixture(t, nil)
	f.request(t, "refund", nil, false)
	replies := f.poll(t)
	require.Len(t, replies, 1)
	require.Equal(t, UnknownAction, replies[0].ResponseResult().ErrorCode)
}

func testOtherReceiver(t *testing.T) {
	f := newPollerFixture(t, nil)
	require.NoError(t, f.requests.Write(model.NewEvent("start", "test", "", nil, 1000)))
	n, err := f.poller.Poll()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	replies, err := f.replies.Read(10)
	require.NoError(t, err)
	require.Empty(t, replies)
}

func testRetryUnavailableBus(t *testing.T) {
	replies := &flakyBus{MessageBus: bus.NewMemoryBus("input"), failures: 2}
	f := newPollerFixture(t, replies)
	f.request(t, "charge", map[string]any{"amount": 3}, false)
	require.Len(t, f.poll(t), 1)
}

func testGiveUp(t *testing.T) {
	replies := &flakyBus{MessageBus: bus.NewMemoryBus("input"), failures: 10}
	f := newPollerFixture(t, replies)
	f.request(t, "charge", map[string]any{"amount": 3}, false)
	require.Empty(t, f.poll(t))
	require.Equal(t, 6, replies.failures)
}

func testDuplicateWorker(t *testing.T) {
	f := newPollerFixture(t, nil)
	require.Error(t, f.poller.RegisterWorker(NewDefaultWorker("charge", nil)))
}
