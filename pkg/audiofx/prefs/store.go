// Package prefs stores effect settings as string values grouped in buckets,
// one bucket per device identity plus a global bucket.
package prefs

import "sync"

// Store is the key/value contract the coordinator depends on
type Store interface {
	GetString(bucket, key, def string) string
	PutString(bucket, key, value string)
	HasBucket(bucket string) bool
	Clear(bucket string)
	Commit() error
}

// MemoryStore keeps everything in memory; Commit is a no-op
type MemoryStore struct {
	lock    sync.Mutex
	buckets map[string]map[string]string
	commits int
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]string)}
}

func (s *MemoryStore) GetString(bucket, key, def string) string {
	s.lock.Lock()
	defer s.lock.Unlock()

	return lookup(s.buckets, bucket, key, def)
}

func (s *MemoryStore) PutString(bucket, key, value string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	put(s.buckets, bucket, key, value)
}

func (s *MemoryStore) HasBucket(bucket string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, ok := s.buckets[bucket]
	return ok
}

func (s *MemoryStore) Clear(bucket string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.buckets, bucket)
}

func (s *MemoryStore) Commit() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.commits++
	return nil
}

// Commits returns how many times Commit was called
func (s *MemoryStore) Commits() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.commits
}

func lookup(buckets map[string]map[string]string, bucket, key, def string) string {
	values, ok := buckets[bucket]
	if !ok {
		return def
	}

	value, ok := values[key]
	if !ok {
		return def
	}

	return value
}

func put(buckets map[string]map[string]string, bucket, key, value string) {
	values, ok := buckets[bucket]
	if !ok {
		values = make(map[string]string)
		buckets[bucket] = values
	}

	values[key] = value
}
