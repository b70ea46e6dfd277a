package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mohitkumar/strand/bus"
	"github.com/mohitkumar/strand/clock"
	"github.com/mohitkumar/strand/engine"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence/memory"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func setupTest(t *testing.T) (*Client, bus.MessageBus) {
	input := bus.NewMemoryBus("input")
	threads := memory.NewThreadStorage()
	thread := model.NewActivityThread(&model.Activity{ID: 1}, "order", "1", "o-1", "A", 1000, map[string]any{"amount": 3})
	thread.Status = model.WAITING
	require.NoError(t, threads.Insert(thread))
	control := engine.NewControl(input, threads, clock.NewManualSource(time.UnixMilli(1000)), "rpc")

	gsrv, err := NewGrpcServer(&GrpcConfig{Threads: control})
	require.NoError(t, err)
	l := bufconn.Listen(1024 * 1024)
	go func() {
		_ = gsrv.Serve(l)
	}()
	conn, err := grpc.Dial("bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return l.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		gsrv.Stop()
	})
	return NewClient(conn), input
}

func TestServer(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, client *Client, input bus.MessageBus){
		"get thread":             testGetThread,
		"commands are queued":    testCommands,
		"missing thread":         testMissingThread,
		"invalid repair request": testInvalidRepair,
		"post event":             testPostEvent,
	} {
		t.Run(scenario, func(t *testing.T) {
			client, input := setupTest(t)
			fn(t, client, input)
		})
	}
}

func testGetThread(t *testing.T, client *Client, input bus.MessageBus) {
	res, err := client.Call(context.Background(), "GetThread", map[string]any{"activity_id": 1, "domain_id": "o-1"})
	require.NoError(t, err)
	require.Equal(t, "waiting", res["status"])
	require.Equal(t, "A", res["current_action"])
	require.Equal(t, float64(3), res["context"].(map[string]any)["amount"])
}

func testCommands(t *testing.T, client *Client, input bus.MessageBus) {
	ctx := context.Background()
	key := map[string]any{"activity_id": 1, "domain_id": "o-1"}
	for _, method := range []string{"Pause", "Continue", "Kill"} {
		res, err := client.Call(ctx, method, key)
		require.NoError(t, err)
		require.Equal(t, true, res["queued"])
	}
	_, err := client.Call(ctx, "Repair", map[string]any{"activity_id": 1, "domain_id": "o-1", "ctrl": "goto", "goto": "A"})
	require.NoError(t, err)

	msgs, err := input.Read(10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	var commands []string
	for _, msg := range msgs {
		commands = append(commands, msg.Command())
	}
	require.Equal(t, []string{model.PauseCommand, model.ContinueCommand, model.KillCommand, model.RepairCommand}, commands)
}

func testMissingThread(t *testing.T, client *Client, input bus.MessageBus) {
	_, err := client.Call(context.Background(), "Pause", map[string]any{"activity_id": 1, "domain_id": "o-9"})
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())
	require.Len(t, st.Details(), 1)
	_, ok = st.Details()[0].(*errdetails.LocalizedMessage)
	require.True(t, ok)

	_, err = client.Call(context.Background(), "Kill", map[string]any{"domain_id": "o-1"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func testInvalidRepair(t *testing.T, client *Client, input bus.MessageBus) {
	_, err := client.Call(context.Background(), "Repair", map[string]any{"activity_id": 1, "domain_id": "o-1", "ctrl": "rewind"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	msgs, err := input.Read(10)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func testPostEvent(t *testing.T, client *Client, input bus.MessageBus) {
	res, err := client.Call(context.Background(), "PostEvent", map[string]any{"type": "start", "attr": map[string]any{"order_id": "o-2"}})
	require.NoError(t, err)
	require.NotEmpty(t, res["id"])
	msgs, err := input.Read(10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "rpc", msgs[0].Sender)
	require.Equal(t, "o-2", msgs[0].StringAttr("order_id"))
}
