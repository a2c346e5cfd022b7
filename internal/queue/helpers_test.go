package queue_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/autobidder/internal/queue"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]queue.DeadLetter
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[uuid.UUID]queue.DeadLetter)}
}

func (m *memoryStore) Insert(_ context.Context, dl queue.DeadLetter) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now()
	}
	m.entries[dl.ID] = dl
	return dl.ID, nil
}

func (m *memoryStore) Get(_ context.Context, id uuid.UUID) (queue.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dl, ok := m.entries[id]
	if !ok {
		return queue.DeadLetter{}, queue.ErrNotFound
	}
	return dl, nil
}

func (m *memoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return queue.ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *memoryStore) List(_ context.Context, kind string, limit, offset int) ([]queue.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]queue.DeadLetter, 0, len(m.entries))
	for _, dl := range m.entries {
		if kind == "" || dl.Kind == kind {
			out = append(out, dl)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) Count(ctx context.Context, kind string) (int64, error) {
	items, err := m.List(ctx, kind, 0, 0)
	return int64(len(items)), err
}

func (m *memoryStore) all() []queue.DeadLetter {
	items, _ := m.List(context.Background(), "", 0, 0)
	return items
}
