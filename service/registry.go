package service

import (
	"fmt"
	"sync"

	"github.com/mohitkumar/strand/bus"
)

// Meta describes an external service reachable through a message bus.
type Meta struct {
	Name       string         `json:"name" yaml:"name"`
	MessageBus string         `json:"message_bus" yaml:"message_bus"`
	Config     map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

type ServiceNotFoundError struct {
	Service string
}

func (e ServiceNotFoundError) Error() string {
	return fmt.Sprintf("could not find the service: '%s'", e.Service)
}

type BusNotFoundError struct {
	Bus string
}

func (e BusNotFoundError) Error() string {
	return fmt.Sprintf("could not find the message bus: '%s'", e.Bus)
}

// Resolver maps a service name to the bus it listens on.
type Resolver interface {
	Contains(name string) bool
	Resolve(name string) (Meta, bus.MessageBus, error)
}

var _ Resolver = new(Registry)

type Registry struct {
	mu       sync.RWMutex
	services map[string]Meta
	buses    *bus.Manager
}

func NewRegistry(buses *bus.Manager) *Registry {
	return &Registry{
		services: make(map[string]Meta),
		buses:    buses,
	}
}

func (r *Registry) Register(meta Meta) error {
	if meta.Name == "" {
		return fmt.Errorf("service name can not be empty")
	}
	if meta.MessageBus == "" {
		return fmt.Errorf("service %s has no message bus", meta.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[meta.Name] = meta
	return nil
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.services, name)
}

func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.services[name]
	return ok
}

func (r *Registry) All() []Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Meta, 0, len(r.services))
	for _, m := range r.services {
		out = append(out, m)
	}
	return out
}

func (r *Registry) Resolve(name string) (Meta, bus.MessageBus, error) {
	r.mu.RLock()
	meta, ok := r.services[name]
	r.mu.RUnlock()
	if !ok {
		return Meta{}, nil, ServiceNotFoundError{Service: name}
	}
	b, ok := r.buses.Get(meta.MessageBus)
	if !ok {
		return meta, nil, BusNotFoundError{Bus: meta.MessageBus}
	}
	return meta, b, nil
}
