package common

import (
	"hash/fnv"
	"sync"
)

const keyedMutexStripes = 64

// KeyedMutex serializes work per key by hashing keys onto a fixed set of
// mutex stripes. Two different keys may share a stripe; the same key always
// maps to the same stripe, so per-key critical sections are safe.
type KeyedMutex struct {
	stripes [keyedMutexStripes]sync.Mutex
}

// NewKeyedMutex creates a keyed mutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

func (m *KeyedMutex) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &m.stripes[h.Sum32()%keyedMutexStripes]
}

// Lock acquires the stripe for key
func (m *KeyedMutex) Lock(key string) {
	m.stripe(key).Lock()
}

// Unlock releases the stripe for key
func (m *KeyedMutex) Unlock(key string) {
	m.stripe(key).Unlock()
}
