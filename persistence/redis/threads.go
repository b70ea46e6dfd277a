package redis

import (
	"context"
	"errors"
	"strconv"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"github.com/mohitkumar/strand/util"
	"go.uber.org/zap"
)

const THREAD_KEY string = "THREAD"

var _ persistence.ThreadStorage = new(redisThreadStorage)

// redisThreadStorage keeps one hash per activity, field domain id, value the
// JSON encoded thread.
type redisThreadStorage struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.ActivityThread]
}

func NewRedisThreadStorage(conf Config) *redisThreadStorage {
	return &redisThreadStorage{
		baseDao:        newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.ActivityThread](),
	}
}

func (r *redisThreadStorage) key(activityID int) string {
	return r.getNamespaceKey(THREAD_KEY, strconv.Itoa(activityID))
}

func (r *redisThreadStorage) Get(activityID int, domainID string) (*model.ActivityThread, error) {
	ctx := context.Background()
	val, err := r.redisClient.HGet(ctx, r.key(activityID), domainID).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Key: model.ThreadKey(activityID, domainID)}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return r.encoderDecoder.DecodeString(val)
}

func (r *redisThreadStorage) MultiGet(activityID int, domainIDs []string) (map[string]*model.ActivityThread, error) {
	out := make(map[string]*model.ActivityThread, len(domainIDs))
	if len(domainIDs) == 0 {
		return out, nil
	}
	ctx := context.Background()
	values, err := r.redisClient.HMGet(ctx, r.key(activityID), domainIDs...).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		thread, err := r.encoderDecoder.DecodeString(s)
		if err != nil {
			return nil, err
		}
		out[domainIDs[i]] = thread
	}
	return out, nil
}

func (r *redisThreadStorage) List(activityID int) ([]*model.ActivityThread, error) {
	ctx := context.Background()
	values, err := r.redisClient.HGetAll(ctx, r.key(activityID)).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]*model.ActivityThread, 0, len(values))
	for _, v := range values {
		thread, err := r.encoderDecoder.DecodeString(v)
		if err != nil {
			return nil, err
		}
		out = append(out, thread)
	}
	return out, nil
}

func (r *redisThreadStorage) Insert(thread *model.ActivityThread) error {
	data, err := r.encoderDecoder.Encode(*thread)
	if err != nil {
		return err
	}
	ctx := context.Background()
	ok, err := r.redisClient.HSetNX(ctx, r.key(thread.ActivityID), thread.DomainID, string(data)).Result()
	if err != nil {
		logger.Error("error in inserting thread", zap.String("thread", thread.Key()), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if !ok {
		return persistence.AlreadyExistsError{Key: thread.Key()}
	}
	return nil
}

func (r *redisThreadStorage) Upsert(thread *model.ActivityThread) error {
	data, err := r.encoderDecoder.Encode(*thread)
	if err != nil {
		return err
	}
	ctx := context.Background()
	if err := r.redisClient.HSet(ctx, r.key(thread.ActivityID), []string{thread.DomainID, string(data)}).Err(); err != nil {
		logger.Error("error in saving thread", zap.String("thread", thread.Key()), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisThreadStorage) BatchUpsert(threads []*model.ActivityThread) error {
	if len(threads) == 0 {
		return nil
	}
	ctx := context.Background()
	_, err := r.redisClient.TxPipelined(ctx, func(pipe rd.Pipeliner) error {
		for _, thread := range threads {
			data, err := r.encoderDecoder.Encode(*thread)
			if err != nil {
				return err
			}
			pipe.HSet(ctx, r.key(thread.ActivityID), []string{thread.DomainID, string(data)})
		}
		return nil
	})
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisThreadStorage) Delete(activityID int, domainID string) error {
	ctx := context.Background()
	if err := r.redisClient.HDel(ctx, r.key(activityID), domainID).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
