package redis

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mohitkumar/strand/definition"
	"github.com/mohitkumar/strand/model"
	"github.com/mohitkumar/strand/persistence"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	conf := Config{
		Addrs:     []string{"localhost:6379"},
		Namespace: "strand-test-" + uuid.NewString(),
	}
	b := newBaseDao(conf)
	defer b.Close()
	if err := b.Ping(context.Background()); err != nil {
		t.Skip("redis not available on localhost:6379")
	}
	return conf
}

func TestThreadStorage(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, s *redisThreadStorage){
		"insert if absent":  testInsertIfAbsent,
		"multi get":         testMultiGet,
		"upsert and delete": testUpsertDelete,
	} {
		t.Run(scenario, func(t *testing.T) {
			s := NewRedisThreadStorage(testConfig(t))
			defer s.Close()
			fn(t, s)
		})
	}
}

func newThread(domainID string) *model.ActivityThread {
	return model.NewActivityThread(&model.Activity{ID: 3}, "order", "1", domainID, "A", 100, map[string]any{"n": "x"})
}

func testInsertIfAbsent(t *testing.T, s *redisThreadStorage) {
	require.NoError(t, s.Insert(newThread("a")))
	err := s.Insert(newThread("a"))
	var ae persistence.AlreadyExistsError
	require.ErrorAs(t, err, &ae)
	got, err := s.Get(3, "a")
	require.NoError(t, err)
	require.Equal(t, "A", got.CurrentAction)
	require.Equal(t, model.SUSPENDING, got.Status)
}

func testMultiGet(t *testing.T, s *redisThreadStorage) {
	require.NoError(t, s.BatchUpsert([]*model.ActivityThread{newThread("a"), newThread("b")}))
	got, err := s.MultiGet(3, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "x", got["b"].Context["n"])
}

func testUpsertDelete(t *testing.T, s *redisThreadStorage) {
	th := newThread("a")
	require.NoError(t, s.Upsert(th))
	th.Status = model.WAITING
	require.NoError(t, s.Upsert(th))
	got, err := s.Get(3, "a")
	require.NoError(t, err)
	require.Equal(t, model.WAITING, got.Status)
	require.NoError(t, s.Delete(3, "a"))
	_, err = s.Get(3, "a")
	var nf persistence.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestClock(t *testing.T) {
	c := NewRedisClock(testConfig(t))
	defer c.Close()
	require.NoError(t, c.RegisterTimer(200, 1, "a", "B", nil))
	require.NoError(t, c.RegisterTimer(100, 1, "a", "A", map[string]any{"request_id": "r1"}))
	due, err := c.Fetch(150, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "A", due[0].Action)
	require.Equal(t, "r1", due[0].StringAttr("request_id"))
	due, err = c.Fetch(150, 10)
	require.NoError(t, err)
	require.Empty(t, due)
	due, err = c.Fetch(300, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestQueue(t *testing.T) {
	q := NewRedisQueue("events", testConfig(t))
	defer q.Close()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Write(model.NewEvent("e", "test", "", map[string]any{"i": i}, int64(i))))
	}
	msgs, err := q.Read(2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.EqualValues(t, 0, msgs[0].Timestamp)
	require.EqualValues(t, 1, msgs[1].Timestamp)
	msgs, err = q.Read(10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	msgs, err = q.Read(10)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestMetadataStorage(t *testing.T) {
	s := NewRedisMetadataStorage(testConfig(t))
	defer s.Close()

	doc := definition.Document{Name: "order", Version: "1", DomainIDStrategy: "order_id", Enable: true}
	require.NoError(t, s.SaveDefinition(doc))
	got, err := s.GetDefinition("order", "1")
	require.NoError(t, err)
	require.Equal(t, "order_id", got.DomainIDStrategy)
	docs, err := s.ListDefinitions()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.NoError(t, s.DeleteDefinition("order", "1"))
	_, err = s.GetDefinition("order", "1")
	require.ErrorAs(t, err, &persistence.NotFoundError{})

	id1, err := s.NextActivityID()
	require.NoError(t, err)
	id2, err := s.NextActivityID()
	require.NoError(t, err)
	require.Equal(t, id1+1, id2)

	require.NoError(t, s.SaveActivity(model.Activity{ID: id1, DisplayName: "orders", DefinitionName: "order", Status: model.ActivityCommon}))
	activity, err := s.GetActivity(id1)
	require.NoError(t, err)
	require.Equal(t, "orders", activity.DisplayName)
	_, err = s.GetActivity(id2)
	require.ErrorAs(t, err, &persistence.NotFoundError{})
	activities, err := s.ListActivities()
	require.NoError(t, err)
	require.Len(t, activities, 1)
}
