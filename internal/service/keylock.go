package service

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// keyLocks hands out one mutex per belief ID. Entries are reference counted
// and removed once no goroutine holds or waits on them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[uuid.UUID]*keyLock)}
}

// Lock acquires every ID in ascending order and returns the release func.
// The fixed order keeps two overlapping cascades from deadlocking.
func (k *keyLocks) Lock(ids []uuid.UUID) func() {
	sorted := dedupeIDs(ids)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	held := make([]*keyLock, 0, len(sorted))
	for _, id := range sorted {
		k.mu.Lock()
		l, ok := k.locks[id]
		if !ok {
			l = &keyLock{}
			k.locks[id] = l
		}
		l.refs++
		k.mu.Unlock()

		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, sorted[i])
			}
			k.mu.Unlock()
		}
	}
}

func (k *keyLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
