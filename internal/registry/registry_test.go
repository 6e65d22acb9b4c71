package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/devcrew/internal/errors"
)

type greeter struct{ name string }

func TestLocator_RegisterAndGet(t *testing.T) {
	l := New()
	g := &greeter{name: "alex"}

	require.NoError(t, l.Register("greeter", g))
	assert.True(t, l.Has("greeter"))

	v, err := l.Get("greeter")
	require.NoError(t, err)
	assert.Same(t, g, v)

	typed, err := Lookup[*greeter](l, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "alex", typed.name)
}

func TestLocator_Errors(t *testing.T) {
	l := New()
	require.NoError(t, l.Register("svc", 1))

	t.Run("duplicate", func(t *testing.T) {
		var exists *errors.AlreadyExistsError
		assert.ErrorAs(t, l.Register("svc", 2), &exists)
	})
	t.Run("missing", func(t *testing.T) {
		_, err := l.Get("nope")
		var nf *errors.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})
	t.Run("nil service", func(t *testing.T) {
		assert.ErrorIs(t, l.Register("nil", nil), errors.ErrInvalidInput)
	})
	t.Run("empty name", func(t *testing.T) {
		assert.ErrorIs(t, l.Register("", 1), errors.ErrInvalidInput)
	})
	t.Run("wrong type", func(t *testing.T) {
		_, err := Lookup[string](l, "svc")
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
	t.Run("MustGet panics", func(t *testing.T) {
		assert.Panics(t, func() { l.MustGet("nope") })
		assert.NotPanics(t, func() { l.MustGet("svc") })
	})
}

func TestLocator_Factory(t *testing.T) {
	l := New()
	var calls atomic.Int32
	require.NoError(t, l.RegisterFactory("lazy", func() (any, error) {
		calls.Add(1)
		return &greeter{name: "lazy"}, nil
	}))
	assert.Zero(t, calls.Load(), "factory must not run at registration")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Lookup[*greeter](l, "lazy")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, l.RegisterFactory("broken", func() (any, error) {
		return nil, fmt.Errorf("no database")
	}))
	_, err := l.Get("broken")
	assert.ErrorContains(t, err, "no database")

	assert.ErrorIs(t, l.RegisterFactory("nilfactory", nil), errors.ErrInvalidInput)
}

func TestLocator_UnregisterNamesReset(t *testing.T) {
	l := New()
	require.NoError(t, l.Register("b", 1))
	require.NoError(t, l.Register("a", 2))

	assert.Equal(t, []string{"a", "b"}, l.Names())
	assert.True(t, l.Unregister("a"))
	assert.False(t, l.Unregister("a"))
	assert.Equal(t, []string{"b"}, l.Names())

	l.Reset()
	assert.Empty(t, l.Names())
	require.NoError(t, l.Register("b", 3), "names are reusable after Reset")
}

func TestDefaultLocator(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	require.NoError(t, Register("bus", "bus-value"))
	require.NoError(t, RegisterFactory("clock", func() (any, error) { return 42, nil }))

	v, err := Get("bus")
	require.NoError(t, err)
	assert.Equal(t, "bus-value", v)
	assert.Equal(t, 42, MustGet("clock"))
	assert.Equal(t, []string{"bus", "clock"}, Names())
	assert.Same(t, defaultLocator, Default())

	assert.True(t, Unregister("bus"))
	assert.Equal(t, []string{"clock"}, Names())
}
