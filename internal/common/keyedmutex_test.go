package common

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock("job-1")
			defer m.Unlock("job-1")
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestKeyedMutex_ManyKeys(t *testing.T) {
	m := NewKeyedMutex()

	counters := make(map[string]*int)
	keys := []string{"job-a", "job-b", "job-c", "job-d"}
	for _, k := range keys {
		counters[k] = new(int)
	}

	var wg sync.WaitGroup
	for _, k := range keys {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				m.Lock(key)
				defer m.Unlock(key)
				*counters[key]++
			}(k)
		}
	}
	wg.Wait()

	for _, k := range keys {
		assert.Equal(t, 50, *counters[k], "key %s", k)
	}
}
