package redis

import (
	"context"
	"errors"
	"strconv"

	rd "github.com/go-redis/redis/v9"
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/logger"
	"github.com/mohitkumar/strand/metadata"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"github.com/mohitkumar/strand/util"
	"go.uber.org/zap"
)

const DEFINITION_KEY string = "DEFINITION"
const ACTIVITY_KEY string = "ACTIVITY"
const ACTIVITY_SEQ_KEY string = "ACTIVITY_SEQ"

var _ metadata.Storage = new(redisMetadataStorage)

type redisMetadataStorage struct {
	*baseDao
	definitionEncoderDecoder util.EncoderDecoder[definition.Document]
	activityEncoderDecoder   util.EncoderDecoder[model.Activity]
}

func NewRedisMetadataStorage(conf Config) *redisMetadataStorage {
	return &redisMetadataStorage{
		baseDao:                  newBaseDao(conf),
		definitionEncoderDecoder: util.NewJsonEncoderDecoder[definition.Document](),
		activityEncoderDecoder:   util.NewJsonEncoderDecoder[model.Activity](),
	}
}

func (rfd *redisMetadataStorage) SaveDefinition(doc definition.Document) error {
	data, err := rfd.definitionEncoderDecoder.Encode(doc)
	if err != nil {
		return err
	}
	key := rfd.getNamespaceKey(DEFINITION_KEY)
	ctx := context.Background()
	if err := rfd.redisClient.HSet(ctx, key, []string{doc.Name + ":" + doc.Version, string(data)}).Err(); err != nil {
		logger.Error("error in saving definition", zap.String("definition", doc.Name), zap.String("version", doc.Version), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rfd *redisMetadataStorage) GetDefinition(name string, version string) (*definition.Document, error) {
	key := rfd.getNamespaceKey(DEFINITION_KEY)
	ctx := context.Background()
	val, err := rfd.redisClient.HGet(ctx, key, name+":"+version).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Key: name + ":" + version}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rfd.definitionEncoderDecoder.DecodeString(val)
}

func (rfd *redisMetadataStorage) ListDefinitions() ([]definition.Document, error) {
	key := rfd.getNamespaceKey(DEFINITION_KEY)
	ctx := context.Background()
	values, err := rfd.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]definition.Document, 0, len(values))
	for _, v := range values {
		doc, err := rfd.definitionEncoderDecoder.DecodeString(v)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (rfd *redisMetadataStorage) DeleteDefinition(name string, version string) error {
	key := rfd.getNamespaceKey(DEFINITION_KEY)
	ctx := context.Background()
	if err := rfd.redisClient.HDel(ctx, key, name+":"+version).Err(); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rfd *redisMetadataStorage) NextActivityID() (int, error) {
	ctx := context.Background()
	id, err := rfd.redisClient.Incr(ctx, rfd.getNamespaceKey(ACTIVITY_SEQ_KEY)).Result()
	if err != nil {
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	return int(id), nil
}

func (rfd *redisMetadataStorage) SaveActivity(activity model.Activity) error {
	data, err := rfd.activityEncoderDecoder.Encode(activity)
	if err != nil {
		return err
	}
	key := rfd.getNamespaceKey(ACTIVITY_KEY)
	ctx := context.Background()
	if err := rfd.redisClient.HSet(ctx, key, []string{strconv.Itoa(activity.ID), string(data)}).Err(); err != nil {
		logger.Error("error in saving activity", zap.Int("activity", activity.ID), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (rfd *redisMetadataStorage) GetActivity(id int) (*model.Activity, error) {
	key := rfd.getNamespaceKey(ACTIVITY_KEY)
	ctx := context.Background()
	val, err := rfd.redisClient.HGet(ctx, key, strconv.Itoa(id)).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, persistence.NotFoundError{Key: strconv.Itoa(id)}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return rfd.activityEncoderDecoder.DecodeString(val)
}

func (rfd *redisMetadataStorage) ListActivities() ([]model.Activity, error) {
	key := rfd.getNamespaceKey(ACTIVITY_KEY)
	ctx := context.Background()
	values, err := rfd.redisClient.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	out := make([]model.Activity, 0, len(values))
	for _, v := range values {
		a, err := rfd.activityEncoderDecoder.DecodeString(v)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}
