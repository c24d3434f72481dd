package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	var order []int
	var mu sync.Mutex
	first := make(chan struct{})

	unlock := km.Lock("user-a")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(first)
		u := km.Lock("user-a")
		defer u()
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	}()

	<-first
	// Give the second goroutine a chance to contend before we finish.
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	unlock()

	wg.Wait()
	require.Equal(t, []int{1, 2}, order)
}

func TestKeyedMutexDistinctKeysDoNotBlock(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("user-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		u := km.Lock("user-b")
		u()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a distinct key blocked")
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := NewKeyedMutex()
	for i := 0; i < 10; i++ {
		unlock := km.Lock("user-a")
		unlock()
	}
	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}

func TestMemoryStoreLazyCreate(t *testing.T) {
	st := NewMemoryStore()
	assert.False(t, st.Has("u1"))

	s := st.Get("u1")
	require.NotNil(t, s)
	assert.Equal(t, StepGreeting, s.Step)
	assert.True(t, st.Has("u1"))

	// Same session on repeat lookup.
	s.Step = StepGetFirstName
	assert.Equal(t, StepGetFirstName, st.Get("u1").Step)

	st.Delete("u1")
	assert.False(t, st.Has("u1"))
	assert.Equal(t, 0, st.Len())
}
