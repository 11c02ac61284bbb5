package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	c := NewCache(Options{DefaultExpiration: time.Minute})
	defer c.Stop()

	c.Set("models", []string{"gpt"})
	v, ok := c.Get("models")
	require.True(t, ok)
	assert.Equal(t, []string{"gpt"}, v)

	c.Delete("models")
	_, ok = c.Get("models")
	assert.False(t, ok)
}

func TestExpiredItemsAreMisses(t *testing.T) {
	c := NewCache(Options{})
	defer c.Stop()

	c.SetWithExpiration("k", 1, time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.deleteExpired()
	assert.Zero(t, c.Count())
}

func TestMaxItemsEvictsOldest(t *testing.T) {
	c := NewCache(Options{MaxItems: 2})
	defer c.Stop()

	var evicted []string
	c.SetOnEvicted(func(k string, _ interface{}) { evicted = append(evicted, k) })

	c.Set("a", 1)
	time.Sleep(time.Millisecond)
	c.Set("b", 2)
	time.Sleep(time.Millisecond)
	c.Set("c", 3)

	assert.Equal(t, []string{"a"}, evicted)
	assert.Equal(t, 2, c.Count())

	// Overwriting an existing key never evicts
	c.Set("c", 4)
	assert.Equal(t, []string{"a"}, evicted)
}

func TestGetOrLoadLoadsOnce(t *testing.T) {
	c := NewCache(Options{DefaultExpiration: time.Minute})
	defer c.Stop()

	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad("catalog", func() (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				return 5, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, 5, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := NewCache(Options{})
	defer c.Stop()

	_, err := c.GetOrLoad("k", func() (interface{}, error) { return nil, errors.New("db down") })
	assert.Error(t, err)
	assert.Zero(t, c.Count())
}
