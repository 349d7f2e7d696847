package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeString(t *testing.T) {
	assert.Equal(t, "real", Real.String())
	assert.Equal(t, "effective", Effective.String())
	assert.Equal(t, "original", Original.String())
	assert.Equal(t, "unknown", Mode(99).String())
}

func TestSingletonTryAcquireReentrant(t *testing.T) {
	s := NewSingleton()

	release, ok := s.TryAcquire("setup")
	require.True(t, ok)
	require.NotNil(t, release)

	_, ok2 := s.TryAcquire("setup")
	assert.False(t, ok2, "second acquire of the same label must not block or succeed")

	release()

	release2, ok3 := s.TryAcquire("setup")
	require.True(t, ok3)
	release2()
}

func TestReentrantLockAcquireShortCircuitsOnOwnedContext(t *testing.T) {
	l := newReentrantLock()

	ctx, release := l.Acquire(context.Background())
	require.NotNil(t, release)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Passing the same ctx must short-circuit rather than deadlock.
		_, inner := l.Acquire(ctx)
		inner()
	}()

	select {
	case <-done:
	case <-context.Background().Done():
		t.Fatal("unreachable")
	}

	release()
}

func TestGateRunAsRestoresOnPanic(t *testing.T) {
	g, err := NewGate()
	require.NoError(t, err)
	// Switch to the process's own current identity so the underlying
	// setresuid/setresgid calls are no-ops regardless of test privilege.
	g.realUID = g.original.ruid
	g.realGID = g.original.rgid

	defer func() {
		r := recover()
		assert.NotNil(t, r, "expected panic to propagate")
		after, err := g.Save()
		require.NoError(t, err)
		assert.Equal(t, g.original, after, "expected identity restored after panic")
	}()

	_ = g.RunAs(Real, func() error {
		panic(errors.New("boom"))
	})
}
