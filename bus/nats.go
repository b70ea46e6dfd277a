package bus

import (
	"encoding/json"
	"time"

	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var _ MessageBus = new(natsBus)

type NatsConfig struct {
	URL           string
	Subject       string
	QueueGroup    string
	Buffer        int
	MaxReconnects int
}

// natsBus publishes to a subject and buffers messages received on the same
// subject until Read drains them.
type natsBus struct {
	name    string
	subject string
	conn    *nats.Conn
	sub     *nats.Subscription
	inbox   chan model.Message
}

func NewNatsBus(name string, conf NatsConfig) (*natsBus, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(5 * time.Second),
		nats.MaxReconnects(conf.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.String("bus", name), zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("bus", name), zap.String("url", nc.ConnectedUrl()))
		}),
	}
	conn, err := nats.Connect(conf.URL, opts...)
	if err != nil {
		return nil, err
	}
	if conf.Buffer <= 0 {
		conf.Buffer = 1024
	}
	b := &natsBus{
		name:    name,
		subject: conf.Subject,
		conn:    conn,
		inbox:   make(chan model.Message, conf.Buffer),
	}
	handler := func(m *nats.Msg) {
		var msg model.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			logger.Error("dropping undecodable nats message", zap.String("bus", name), zap.Error(err))
			return
		}
		b.inbox <- msg
	}
	if conf.QueueGroup != "" {
		b.sub, err = conn.QueueSubscribe(conf.Subject, conf.QueueGroup, handler)
	} else {
		b.sub, err = conn.Subscribe(conf.Subject, handler)
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *natsBus) Name() string {
	return b.name
}

func (b *natsBus) Write(msg model.Message) error {
	if !b.conn.IsConnected() {
		return UnavailableError{Bus: b.name, Message: b.conn.Status().String()}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return UnavailableError{Bus: b.name, Message: err.Error()}
	}
	return nil
}

func (b *natsBus) Read(n int) ([]model.Message, error) {
	var out []model.Message
	for n <= 0 || len(out) < n {
		select {
		case msg := <-b.inbox:
			out = append(out, msg)
		default:
			return out, nil
		}
	}
	return out, nil
}

func (b *natsBus) Close() error {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	return b.conn.Drain()
}
