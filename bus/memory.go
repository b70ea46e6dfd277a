package bus

import (
	"sync"

	"github.com/mohitkumar/strand/model"
)

var _ MessageBus = new(memoryBus)

type memoryBus struct {
	name   string
	mu     sync.Mutex
	queue  []model.Message
	closed bool
}

func NewMemoryBus(name string) *memoryBus {
	return &memoryBus{name: name}
}

func (b *memoryBus) Name() string {
	return b.name
}

func (b *memoryBus) Write(msg model.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return UnavailableError{Bus: b.name, Message: "closed"}
	}
	b.queue = append(b.queue, msg)
	return nil
}

func (b *memoryBus) Read(n int) ([]model.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.queue) {
		n = len(b.queue)
	}
	out := make([]model.Message, n)
	copy(out, b.queue[:n])
	b.queue = b.queue[n:]
	return out, nil
}

func (b *memoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
