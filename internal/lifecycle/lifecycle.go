// Package lifecycle contains internal helpers for serializing lifecycle transitions.
package lifecycle

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// KeyedMutex hands out one mutex per key. Mutexes are created on first use
// and kept for the lifetime of the KeyedMutex; the key space is the set of
// module names, which stays small.
type KeyedMutex struct {
	locks cmap.ConcurrentMap[string, *sync.Mutex]
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: cmap.New[*sync.Mutex]()}
}

// Lock acquires the mutex for key and returns the function releasing it.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	mu := k.locks.Upsert(key, nil, func(exist bool, inMap, _ *sync.Mutex) *sync.Mutex {
		if exist {
			return inMap
		}
		return &sync.Mutex{}
	})
	mu.Lock()
	return mu.Unlock
}

// Len returns the number of keys a mutex was ever created for.
func (k *KeyedMutex) Len() int {
	return k.locks.Count()
}
