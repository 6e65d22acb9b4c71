// Package registry provides a small service locator used to share
// long-lived components (cache, error handler, event bus, metrics) between
// CLI commands without threading them through every constructor.
//
// Services are registered either as ready values or as factories that are
// invoked once on first lookup. The zero value is not usable; call New or
// use the package-level default locator.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

// Factory builds a service on first use.
type Factory func() (any, error)

type slot struct {
	value   any
	factory Factory
	once    sync.Once
	err     error
}

func (s *slot) resolve() (any, error) {
	if s.factory == nil {
		return s.value, nil
	}
	s.once.Do(func() {
		s.value, s.err = s.factory()
	})
	return s.value, s.err
}

// Locator maps service names to instances. It is safe for concurrent use.
type Locator struct {
	mu    sync.RWMutex
	slots map[string]*slot
}

// New creates an empty locator.
func New() *Locator {
	return &Locator{slots: make(map[string]*slot)}
}

// Register adds a ready service under name.
func (l *Locator) Register(name string, service any) error {
	if service == nil {
		return errors.NewValidationError("service must not be nil").WithField(name)
	}
	return l.add(name, &slot{value: service})
}

// RegisterFactory adds a service built lazily by fn. A factory that fails is
// not retried; the error is returned from every lookup.
func (l *Locator) RegisterFactory(name string, fn Factory) error {
	if fn == nil {
		return errors.NewValidationError("factory must not be nil").WithField(name)
	}
	return l.add(name, &slot{factory: fn})
}

func (l *Locator) add(name string, s *slot) error {
	if name == "" {
		return errors.NewValidationError("service name must not be empty")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.slots[name]; exists {
		return errors.NewAlreadyExistsError("service", name)
	}
	l.slots[name] = s
	return nil
}

// Get returns the service registered under name.
func (l *Locator) Get(name string) (any, error) {
	l.mu.RLock()
	s, ok := l.slots[name]
	l.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError("service", name)
	}
	v, err := s.resolve()
	if err != nil {
		return nil, errors.Wrapf(err, "build service %q", name)
	}
	return v, nil
}

// MustGet is Get that panics on error. Intended for wiring code where a
// missing service is a programming error.
func (l *Locator) MustGet(name string) any {
	v, err := l.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Has reports whether name is registered.
func (l *Locator) Has(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.slots[name]
	return ok
}

// Unregister removes name and reports whether it was present.
func (l *Locator) Unregister(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.slots[name]; !ok {
		return false
	}
	delete(l.slots, name)
	return true
}

// Names returns the registered service names in sorted order.
func (l *Locator) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.slots))
	for name := range l.slots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset removes every service.
func (l *Locator) Reset() {
	l.mu.Lock()
	l.slots = make(map[string]*slot)
	l.mu.Unlock()
}

// Lookup returns the service under name as a T.
func Lookup[T any](l *Locator, name string) (T, error) {
	var zero T
	v, err := l.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.NewValidationError(fmt.Sprintf("service %q has type %T, want %T", name, v, zero)).WithField(name)
	}
	return typed, nil
}

var defaultLocator = New()

// Default returns the process-wide locator.
func Default() *Locator {
	return defaultLocator
}

// Register adds a service to the default locator.
func Register(name string, service any) error {
	return defaultLocator.Register(name, service)
}

// RegisterFactory adds a lazily built service to the default locator.
func RegisterFactory(name string, fn Factory) error {
	return defaultLocator.RegisterFactory(name, fn)
}

// Get looks up a service in the default locator.
func Get(name string) (any, error) {
	return defaultLocator.Get(name)
}

// MustGet looks up a service in the default locator and panics on error.
func MustGet(name string) any {
	return defaultLocator.MustGet(name)
}

// Unregister removes a service from the default locator.
func Unregister(name string) bool {
	return defaultLocator.Unregister(name)
}

// Names lists the services in the default locator.
func Names() []string {
	return defaultLocator.Names()
}

// Reset clears the default locator.
func Reset() {
	defaultLocator.Reset()
}
