package caches

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnlimitedLoadsOnce(t *testing.T) {
	t.Parallel()

	c := NewUnlimited[string, int]()
	var calls atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			v, err := c.Get("a", func(k string) (int, error) {
				calls.Add(1)
				return len(k), nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 1, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestUnlimitedKeepsErrors(t *testing.T) {
	t.Parallel()

	c := NewUnlimited[int, string]()
	boom := errors.New("boom")

	_, err := c.Get(1, func(int) (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)

	_, err = c.Get(1, func(int) (string, error) { return "ok", nil })
	assert.ErrorIs(t, err, boom)
}
