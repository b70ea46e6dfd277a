package redis

import (
	"context"
	"errors"
	"strconv"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/strand/clock"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"github.com/mohitkumar/strand/util"
)

const CLOCK_KEY string = "CLOCK"

var _ clock.Clock = new(redisClock)

// redisClock keeps timers in a sorted set scored by fire time. A fetched
// timer is handed out only by the caller whose ZREM removed it.
type redisClock struct {
	*baseDao
	encoderDecoder util.EncoderDecoder[model.Message]
}

func NewRedisClock(conf Config) *redisClock {
	return &redisClock{
		baseDao:        newBaseDao(conf),
		encoderDecoder: util.NewJsonEncoderDecoder[model.Message](),
	}
}

func (r *redisClock) RegisterTimer(fireAt int64, activityID int, domainID string, action string, attrs map[string]any) error {
	msg := model.NewClockMessage(fireAt, activityID, domainID, action, attrs)
	data, err := r.encoderDecoder.Encode(msg)
	if err != nil {
		return err
	}
	return r.addToSortedSet(r.getNamespaceKey(CLOCK_KEY), string(data), fireAt)
}

func (r *redisClock) Fetch(now int64, limit int) ([]model.Message, error) {
	values, err := r.getExpiredFromSortedSet(r.getNamespaceKey(CLOCK_KEY), now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(values))
	for _, v := range values {
		msg, err := r.encoderDecoder.DecodeString(v)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (r *redisClock) addToSortedSet(key string, message string, fireAt int64) error {
	ctx := context.Background()
	member := rd.Z{
		Score:  float64(fireAt),
		Member: message,
	}
	if err := r.redisClient.ZAdd(ctx, key, member).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (r *redisClock) getExpiredFromSortedSet(key string, now int64, limit int) ([]string, error) {
	ctx := context.Background()
	opt := &rd.ZRangeBy{
		Min: strconv.Itoa(0),
		Max: strconv.FormatInt(now, 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	values, err := r.redisClient.ZRangeByScore(ctx, key, opt).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return []string{}, nil
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	if len(values) == 0 {
		return values, nil
	}
	pipe := r.redisClient.Pipeline()
	removed := make([]*rd.IntCmd, len(values))
	for i, v := range values {
		removed[i] = pipe.ZRem(ctx, key, v)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	res := make([]string, 0, len(values))
	for i, v := range values {
		if removed[i].Val() == 1 {
			res = append(res, v)
		}
	}
	return res, nil
}
