package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := newKeyedMutex()
	ctx := context.Background()

	release, err := m.Lock(ctx, "a")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := m.Lock(ctx, "a")
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same key must wait")
	case <-time.After(20 * time.Millisecond):
	}

	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock was never granted")
	}
}

func TestKeyedMutex_DifferentKeysIndependent(t *testing.T) {
	m := newKeyedMutex()
	ctx := context.Background()

	ra, err := m.Lock(ctx, "a")
	require.NoError(t, err)
	defer ra()

	done := make(chan struct{})
	go func() {
		rb, err := m.Lock(ctx, "b")
		if err == nil {
			rb()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on another key must not block")
	}
}

func TestKeyedMutex_HonorsCancellation(t *testing.T) {
	m := newKeyedMutex()

	release, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = m.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeyedMutex_ReleaseIdempotentAndCleansUp(t *testing.T) {
	m := newKeyedMutex()

	release, err := m.Lock(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, m.size())

	release()
	release() // must not block or panic
	assert.Equal(t, 0, m.size())
}

func TestKeyedMutex_TryLock(t *testing.T) {
	m := newKeyedMutex()
	ctx := context.Background()

	release, ok, err := m.TryLock(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = m.TryLock(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok, "held key must not be granted twice")
	assert.Equal(t, 1, m.size())

	_, ok, _ = m.TryLock(ctx, "b")
	assert.True(t, ok)

	release()
	again, ok, err := m.TryLock(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	again()
}
