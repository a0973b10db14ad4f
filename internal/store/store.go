// Package store defines the memory store contract and its backend factory.
// The map controller only ever reads the visible list; mutations come from
// the API layer.
package store

import (
	"github.com/amou/memorymap/pkg/core"
)

// Sentinel errors shared by all backends, re-exported for callers that only
// import the store package.
var (
	ErrNotFound   = core.ErrNotFound
	ErrUserExists = core.ErrUserExists
)

// Backend is the interface all storage implementations must satisfy.
type Backend interface {
	// Lifecycle
	Open() error
	Close() error

	// Memory CRUD. CreateMemory assigns an ID to the passed pointer when empty.
	ListVisible(userID string) ([]core.Memory, error)
	CountMemories() (int, error)
	GetMemory(id string) (core.Memory, error)
	CreateMemory(m *core.Memory) error
	UpdateMemory(id string, u core.MemoryUpdate) (core.Memory, error)
	DeleteMemory(id string) error

	// User accounts. CreateUser assigns an ID to the passed pointer when empty.
	CreateUser(u *core.User) error
	UserByEmail(email string) (core.User, error)
	UserByID(id string) (core.User, error)
}
