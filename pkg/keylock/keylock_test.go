package keylock

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSerializesSameKey(t *testing.T) {
	m := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.With("doc-1", func() error {
				v := counter
				counter = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
	assert.Equal(t, 0, m.Len(), "idle keys should be released")
}

func TestWithReleasesOnError(t *testing.T) {
	m := New()
	boom := errors.New("boom")
	err := m.With("k", func() error { return boom })
	require.ErrorIs(t, err, boom)

	unlock := m.Lock("k")
	unlock()
	unlock()
	assert.Equal(t, 0, m.Len())
}

func TestWithReleasesOnPanic(t *testing.T) {
	m := New()
	assert.Panics(t, func() {
		_ = m.With("k", func() error { panic("bad") })
	})
	done := make(chan struct{})
	go func() {
		_ = m.With("k", func() error { return nil })
		close(done)
	}()
	<-done
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	m := New()
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()
	<-done
}
