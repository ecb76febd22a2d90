package narrative

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// channelLocks serializes work per channel. Entries are dropped once no
// request holds or waits on them.
type channelLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newChannelLocks() *channelLocks {
	return &channelLocks{entries: make(map[string]*lockEntry)}
}

func (l *channelLocks) acquire(ctx context.Context, channelID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[channelID]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[channelID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.drop(channelID, entry)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.drop(channelID, entry)
		})
	}, nil
}

func (l *channelLocks) drop(channelID string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, channelID)
	}
}

func (l *channelLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
