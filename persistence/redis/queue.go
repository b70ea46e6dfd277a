package redis

import (
	"context"
	"errors"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/strand/bus"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"github.com/mohitkumar/strand/util"
	"go.uber.org/zap"
)

const QUEUE_KEY string = "QUEUE"

var _ bus.MessageBus = new(redisQueue)

// redisQueue is a message bus over a redis list. Messages are pushed on the
// left and popped from the right so they come out in arrival order.
type redisQueue struct {
	*baseDao
	name           string
	encoderDecoder util.EncoderDecoder[model.Message]
}

func NewRedisQueue(name string, conf Config) *redisQueue {
	return &redisQueue{
		baseDao:        newBaseDao(conf),
		name:           name,
		encoderDecoder: util.NewJsonEncoderDecoder[model.Message](),
	}
}

func (rq *redisQueue) Name() string {
	return rq.name
}

func (rq *redisQueue) queueName() string {
	return rq.getNamespaceKey(QUEUE_KEY, rq.name)
}

func (rq *redisQueue) Write(msg model.Message) error {
	data, err := rq.encoderDecoder.Encode(msg)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := rq.redisClient.LPush(ctx, rq.queueName(), data).Err(); err != nil {
		logger.Error("error while push to redis list", zap.String("queue", rq.queueName()), zap.Error(err))
		return bus.UnavailableError{Bus: rq.name, Message: err.Error()}
	}
	return nil
}

func (rq *redisQueue) Read(n int) ([]model.Message, error) {
	if n <= 0 {
		n = 1000
	}
	ctx := context.Background()
	res, err := rq.redisClient.RPopCount(ctx, rq.queueName(), n).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []model.Message{}, nil
		}
		logger.Error("error while pop from redis list", zap.String("queue", rq.queueName()), zap.Error(err))
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]model.Message, 0, len(res))
	for _, v := range res {
		msg, err := rq.encoderDecoder.DecodeString(v)
		if err != nil {
			logger.Error("dropping undecodable message", zap.String("queue", rq.queueName()), zap.Error(err))
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}
