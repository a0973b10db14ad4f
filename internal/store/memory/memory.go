// Package memory implements the store.Backend interface with an in-process
// dataset persisted to a single JSON file. It replaces the browser
// localStorage client of the original frontend with an explicitly
// constructed object: no package-level state, and an Open/Close lifecycle
// that loads and flushes the file.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/amou/memorymap/internal/config"
	"github.com/amou/memorymap/pkg/core"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// fileFormat is the on-disk JSON document.
type fileFormat struct {
	Users    []core.User   `json:"users"`
	Memories []core.Memory `json:"memories"`
}

// Backend stores users and memories in memory and persists to a JSON file.
type Backend struct {
	cfg config.MemoryConfig

	mu       sync.RWMutex
	users    map[string]core.User
	memories map[string]core.Memory
	opened   bool
}

// New creates a new JSON-file backend.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:      cfg,
		users:    make(map[string]core.User),
		memories: make(map[string]core.Memory),
	}
}

// Open loads the backing file if it exists.
func (b *Backend) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			b.opened = true
			return nil
		}
		return fmt.Errorf("reading store file: %w", err)
	}

	var doc fileFormat
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing store file: %w", err)
	}
	for _, u := range doc.Users {
		b.users[u.ID] = u
	}
	for _, m := range doc.Memories {
		b.memories[m.ID] = m
	}
	b.opened = true
	return nil
}

// Close flushes the dataset to disk.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened {
		return nil
	}
	b.opened = false
	return b.flushLocked()
}

// flushLocked writes the current dataset to the backing file.
// Callers must hold b.mu.
func (b *Backend) flushLocked() error {
	doc := fileFormat{
		Users:    make([]core.User, 0, len(b.users)),
		Memories: make([]core.Memory, 0, len(b.memories)),
	}
	for _, u := range b.users {
		doc.Users = append(doc.Users, u)
	}
	for _, m := range b.memories {
		doc.Memories = append(doc.Memories, m)
	}
	sort.Slice(doc.Users, func(i, j int) bool { return doc.Users[i].ID < doc.Users[j].ID })
	sort.Slice(doc.Memories, func(i, j int) bool { return doc.Memories[i].ID < doc.Memories[j].ID })

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding store file: %w", err)
	}
	if dir := filepath.Dir(b.cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating store directory: %w", err)
		}
	}
	if err := os.WriteFile(b.cfg.Path, data, 0644); err != nil {
		return fmt.Errorf("writing store file: %w", err)
	}
	return nil
}

// ListVisible returns the user's own memories plus everyone's public ones,
// newest first, with owner profiles attached.
func (b *Backend) ListVisible(userID string) ([]core.Memory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.Memory
	for _, m := range b.memories {
		if m.UserID != userID && !m.IsPublic {
			continue
		}
		out = append(out, b.withProfileLocked(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CountMemories returns the total number of stored memories.
func (b *Backend) CountMemories() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.memories), nil
}

// GetMemory returns a single memory by id.
func (b *Backend) GetMemory(id string) (core.Memory, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	m, ok := b.memories[id]
	if !ok {
		return core.Memory{}, core.ErrNotFound
	}
	return b.withProfileLocked(m), nil
}

// CreateMemory stores a new memory, assigning an id and timestamps.
func (b *Backend) CreateMemory(m *core.Memory) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("generating memory id: %w", err)
		}
		m.ID = id
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	b.memories[m.ID] = *m
	return b.flushLocked()
}

// UpdateMemory applies the set fields of u to an existing memory.
func (b *Backend) UpdateMemory(id string, u core.MemoryUpdate) (core.Memory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.memories[id]
	if !ok {
		return core.Memory{}, core.ErrNotFound
	}
	u.Apply(&m)
	b.memories[id] = m
	if err := b.flushLocked(); err != nil {
		return core.Memory{}, err
	}
	return b.withProfileLocked(m), nil
}

// DeleteMemory removes a memory by id.
func (b *Backend) DeleteMemory(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.memories[id]; !ok {
		return core.ErrNotFound
	}
	delete(b.memories, id)
	return b.flushLocked()
}

// CreateUser stores a new user, assigning an id.
func (b *Backend) CreateUser(u *core.User) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.users {
		if existing.Email == u.Email {
			return core.ErrUserExists
		}
	}
	if u.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("generating user id: %w", err)
		}
		u.ID = id
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	b.users[u.ID] = *u
	return b.flushLocked()
}

// UserByEmail looks up a user by email address.
func (b *Backend) UserByEmail(email string) (core.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, u := range b.users {
		if u.Email == email {
			return u, nil
		}
	}
	return core.User{}, core.ErrNotFound
}

// UserByID looks up a user by id.
func (b *Backend) UserByID(id string) (core.User, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	u, ok := b.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

// withProfileLocked attaches the owner's profile fields to a copy of m.
// Callers must hold b.mu.
func (b *Backend) withProfileLocked(m core.Memory) core.Memory {
	if u, ok := b.users[m.UserID]; ok {
		m.Username = u.Username
		m.DisplayName = u.DisplayName
	}
	return m
}
