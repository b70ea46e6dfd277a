package clock

import (
	"sort"
	"sync"
	"time"

	"github.com/mohitkumar/strand/model"
)

// Source is the time source shared by the scheduler, actions and timers.
type Source interface {
	Now() time.Time
}

type SystemSource struct{}

func (SystemSource) Now() time.Time {
	return time.Now()
}

// ManualSource only moves when told to.
type ManualSource struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualSource(start time.Time) *ManualSource {
	return &ManualSource{now: start}
}

func (m *ManualSource) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *ManualSource) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func Millis(s Source) int64 {
	return s.Now().UnixMilli()
}

// Clock stores timers and hands back the ones that are due. Fired timers are
// delivered to threads as ordinary clock messages.
type Clock interface {
	RegisterTimer(fireAt int64, activityID int, domainID string, action string, attrs map[string]any) error
	Fetch(now int64, limit int) ([]model.Message, error)
}

var _ Clock = new(memoryClock)

type memoryClock struct {
	mu     sync.Mutex
	timers []model.Message
}

func NewMemoryClock() *memoryClock {
	return &memoryClock{}
}

func (c *memoryClock) RegisterTimer(fireAt int64, activityID int, domainID string, action string, attrs map[string]any) error {
	msg := model.NewClockMessage(fireAt, activityID, domainID, action, attrs)
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := sort.Search(len(c.timers), func(i int) bool {
		return c.timers[i].Timestamp > fireAt
	})
	c.timers = append(c.timers, model.Message{})
	copy(c.timers[idx+1:], c.timers[idx:])
	c.timers[idx] = msg
	return nil
}

func (c *memoryClock) Fetch(now int64, limit int) ([]model.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := sort.Search(len(c.timers), func(i int) bool {
		return c.timers[i].Timestamp > now
	})
	if limit > 0 && n > limit {
		n = limit
	}
	due := make([]model.Message, n)
	copy(due, c.timers[:n])
	c.timers = c.timers[n:]
	return due, nil
}

func (c *memoryClock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
