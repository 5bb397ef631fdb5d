package connector

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotRegistered     = errors.New("bean is not registered")
	ErrAlreadyRegistered = errors.New("bean is already registered")
)

// Registry is an in-process Runtime. Beans are registered by identifier and notifications
// are delivered by Emit on the caller's goroutine.
type Registry struct {
	mu     sync.RWMutex
	beans  map[string]map[uint64]NotificationFunc
	nextID uint64
}

var _ Runtime = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{beans: make(map[string]map[uint64]NotificationFunc)}
}

func (r *Registry) Register(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.beans[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	r.beans[id] = make(map[uint64]NotificationFunc)
	return nil
}

// Unregister removes the bean together with its listeners.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.beans[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	delete(r.beans, id)
	return nil
}

func (r *Registry) IsRegistered(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.beans[id]
	return ok
}

func (r *Registry) Subscribe(id string, fn NotificationFunc) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	listeners, ok := r.beans[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	r.nextID++
	listeners[r.nextID] = fn
	return &registrySubscription{registry: r, id: id, key: r.nextID}, nil
}

// Emit delivers n to every listener of the bean. Listeners run without the registry lock held.
func (r *Registry) Emit(id string, n Notification) error {
	r.mu.RLock()
	listeners, ok := r.beans[id]
	if !ok {
		r.mu.RUnlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, id)
	}
	fns := make([]NotificationFunc, 0, len(listeners))
	for _, fn := range listeners {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(n)
	}
	return nil
}

type registrySubscription struct {
	registry *Registry
	id       string
	key      uint64
}

func (s *registrySubscription) Unsubscribe() error {
	s.registry.mu.Lock()
	defer s.registry.mu.Unlock()
	if listeners, ok := s.registry.beans[s.id]; ok {
		delete(listeners, s.key)
	}
	return nil
}
