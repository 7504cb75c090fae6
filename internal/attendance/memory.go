package attendance

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"
)

const memoryShards = 16

type memoryShard struct {
	mu      sync.Mutex
	records map[Key]Record
}

// MemoryStore is an in-process Store. Keys are striped across shards so that
// unrelated keys do not contend on one lock.
type MemoryStore struct {
	shards [memoryShards]memoryShard
	nextID atomic.Int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	for i := range m.shards {
		m.shards[i].records = make(map[Key]Record)
	}
	return m
}

func (m *MemoryStore) shard(k Key) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(k.Identity))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.ClassCode))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.Subject))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.Day))
	return &m.shards[h.Sum32()%memoryShards]
}

// InsertIfAbsent implements Store.
func (m *MemoryStore) InsertIfAbsent(ctx context.Context, rec Record) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	s := m.shard(rec.Key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.Key]; ok {
		return Record{}, false, nil
	}
	rec.ID = m.nextID.Add(1)
	s.records[rec.Key] = rec
	return rec, true, nil
}

// ListByIdentity implements Store.
func (m *MemoryStore) ListByIdentity(ctx context.Context, identity string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, r := range s.records {
			if k.Identity == identity {
				out = append(out, r)
			}
		}
		s.mu.Unlock()
	}
	SortNewestFirst(out)
	return out, nil
}

// SortNewestFirst orders records by time descending, then ID descending.
func SortNewestFirst(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Time.Equal(records[j].Time) {
			return records[i].Time.After(records[j].Time)
		}
		return records[i].ID > records[j].ID
	})
}
