package store

import (
	"fmt"

	"github.com/amou/memorymap/internal/config"
	"github.com/amou/memorymap/internal/store/gormstore"
	"github.com/amou/memorymap/internal/store/memory"

	"gorm.io/gorm"
)

// GormOpener supplies a database handle for the gorm-backed store types.
// It is only consulted when the configured type needs one.
type GormOpener func() (*gorm.DB, error)

// NewBackend creates a storage backend based on configuration.
func NewBackend(cfg config.StorageConfig, openDB GormOpener) (Backend, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(cfg.Memory), nil
	case "sqlite", "postgres":
		if openDB == nil {
			return nil, fmt.Errorf("storage type %s requires a database connection", cfg.Type)
		}
		db, err := openDB()
		if err != nil {
			return nil, fmt.Errorf("opening %s database: %w", cfg.Type, err)
		}
		return gormstore.New(db), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
