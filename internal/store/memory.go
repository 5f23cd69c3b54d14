package store

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

type entry struct {
	value    string
	deadline time.Time
}

func (e entry) expired(now time.Time) bool { return now.After(e.deadline) }

// Memory is a mutex-guarded in-process Store with lazy expiry. It backs
// tests and single-instance dev mode; the atomic counter ops hold the lock
// for the whole read-modify-write, which gives the same indivisibility the
// redis scripts give.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]entry{}}
}

// lookup returns the live entry for key, dropping it if expired.
// Callers must hold the lock.
func (m *Memory) lookup(key string, now time.Time) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(now) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, true
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key, time.Now())
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) GetMulti(_ context.Context, keys []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if e, ok := m.lookup(k, now); ok {
			out[k] = e.value
		}
	}
	return out, nil
}

func (m *Memory) SetEx(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, deadline: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) SetNXEx(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if _, ok := m.lookup(key, now); ok {
		return false, nil
	}
	m.entries[key] = entry{value: value, deadline: now.Add(ttl)}
	return true, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key, time.Now())
	return ok, nil
}

func (m *Memory) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	e, ok := m.lookup(key, now)
	if !ok {
		return nil
	}
	e.deadline = now.Add(ttl)
	m.entries[key] = e
	return nil
}

// Scan matches keys against a redis-style glob. Expired entries found on
// the way are swept out.
func (m *Memory) Scan(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var keys []string
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			continue
		}
		if ok, err := path.Match(pattern, k); err == nil && ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *Memory) IncrRefresh(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	n := m.counter(key, now)
	n++
	m.entries[key] = entry{value: strconv.FormatInt(n, 10), deadline: now.Add(ttl)}
	return n, nil
}

func (m *Memory) DecrSaturateRefresh(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	n := m.counter(key, now)
	if n > 0 {
		n--
	}
	m.entries[key] = entry{value: strconv.FormatInt(n, 10), deadline: now.Add(ttl)}
	return n, nil
}

// counter reads the key as an int64, treating absence or garbage as 0.
// Callers must hold the lock.
func (m *Memory) counter(key string, now time.Time) int64 {
	e, ok := m.lookup(key, now)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
