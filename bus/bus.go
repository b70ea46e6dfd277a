package bus

import (
	"fmt"
	"sync"

	"github.com/mohitkumar/strand/model"
)

// MessageBus carries messages between the runner, services and event sources.
type MessageBus interface {
	Name() string
	Write(msg model.Message) error
	Read(n int) ([]model.Message, error)
	Close() error
}

type UnavailableError struct {
	Bus     string
	Message string
}

func (e UnavailableError) Error() string {
	return fmt.Sprintf("message bus %s not available: %s", e.Bus, e.Message)
}

type Manager struct {
	mu    sync.RWMutex
	buses map[string]MessageBus
}

func NewManager() *Manager {
	return &Manager{
		buses: make(map[string]MessageBus),
	}
}

func (m *Manager) Register(b MessageBus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buses[b.Name()] = b
}

func (m *Manager) Get(name string) (MessageBus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buses[name]
	return b, ok
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, b := range m.buses {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
