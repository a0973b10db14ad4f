// Package gormstore implements the store.Backend interface on a GORM
// database (SQLite or Postgres, chosen by the connection it is given).
package gormstore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amou/memorymap/pkg/core"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MemoryRow is the persisted form of a core.Memory.
type MemoryRow struct {
	ID          string `gorm:"primaryKey"`
	UserID      string `gorm:"index;not null"`
	Title       string `gorm:"not null"`
	Description string
	Color       string
	IsPublic    bool `gorm:"index"`
	PhotoURL    string
	PhotoMeta   datatypes.JSON
	Category    string
	Latitude    float64
	Longitude   float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRow is the persisted form of a core.User.
type UserRow struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Username     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// photoMeta summarizes an inline photo attachment for querying without
// decoding the data URI.
type photoMeta struct {
	Mime  string `json:"mime"`
	Bytes int    `json:"bytes"`
}

// Backend is the GORM-backed store.
type Backend struct {
	db *gorm.DB
}

// New creates a gorm store on the given connection.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// Open migrates the schema.
func (b *Backend) Open() error {
	if err := b.db.AutoMigrate(&UserRow{}, &MemoryRow{}); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("accessing sql interface: %w", err)
	}
	return sqlDB.Close()
}

// ListVisible returns the user's own memories plus public ones, newest first.
func (b *Backend) ListVisible(userID string) ([]core.Memory, error) {
	var rows []MemoryRow
	err := b.db.
		Where("user_id = ? OR is_public = ?", userID, true).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}

	out := make([]core.Memory, 0, len(rows))
	for _, r := range rows {
		out = append(out, b.toMemory(r))
	}
	return out, nil
}

// CountMemories returns the total number of stored memories.
func (b *Backend) CountMemories() (int, error) {
	var count int64
	if err := b.db.Model(&MemoryRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting memories: %w", err)
	}
	return int(count), nil
}

// GetMemory returns a single memory by id.
func (b *Backend) GetMemory(id string) (core.Memory, error) {
	var row MemoryRow
	err := b.db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Memory{}, core.ErrNotFound
	}
	if err != nil {
		return core.Memory{}, fmt.Errorf("loading memory: %w", err)
	}
	return b.toMemory(row), nil
}

// CreateMemory inserts a new memory, assigning an id and timestamps.
func (b *Backend) CreateMemory(m *core.Memory) error {
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

	row := toRow(*m)
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("inserting memory: %w", err)
	}
	return nil
}

// UpdateMemory applies the set fields of u to an existing memory.
func (b *Backend) UpdateMemory(id string, u core.MemoryUpdate) (core.Memory, error) {
	var row MemoryRow
	err := b.db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Memory{}, core.ErrNotFound
	}
	if err != nil {
		return core.Memory{}, fmt.Errorf("loading memory: %w", err)
	}

	m := b.toMemory(row)
	u.Apply(&m)
	updated := toRow(m)
	if err := b.db.Save(&updated).Error; err != nil {
		return core.Memory{}, fmt.Errorf("saving memory: %w", err)
	}
	return b.toMemory(updated), nil
}

// DeleteMemory removes a memory by id.
func (b *Backend) DeleteMemory(id string) error {
	res := b.db.Delete(&MemoryRow{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("deleting memory: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// CreateUser inserts a new user, assigning an id.
func (b *Backend) CreateUser(u *core.User) error {
	var count int64
	if err := b.db.Model(&UserRow{}).Where("email = ?", u.Email).Count(&count).Error; err != nil {
		return fmt.Errorf("checking user email: %w", err)
	}
	if count > 0 {
		return core.ErrUserExists
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

	row := UserRow{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// UserByEmail looks up a user by email address.
func (b *Backend) UserByEmail(email string) (core.User, error) {
	var row UserRow
	err := b.db.First(&row, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("loading user: %w", err)
	}
	return toUser(row), nil
}

// UserByID looks up a user by id.
func (b *Backend) UserByID(id string) (core.User, error) {
	var row UserRow
	err := b.db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("loading user: %w", err)
	}
	return toUser(row), nil
}

// toMemory converts a row back to the domain record and attaches the
// owner's profile.
func (b *Backend) toMemory(r MemoryRow) core.Memory {
	m := core.Memory{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		Color:       r.Color,
		IsPublic:    r.IsPublic,
		PhotoURL:    r.PhotoURL,
		Category:    r.Category,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	var owner UserRow
	if err := b.db.First(&owner, "id = ?", r.UserID).Error; err == nil {
		m.Username = owner.Username
		m.DisplayName = owner.DisplayName
	}
	return m
}

func toRow(m core.Memory) MemoryRow {
	return MemoryRow{
		ID:          m.ID,
		UserID:      m.UserID,
		Title:       m.Title,
		Description: m.Description,
		Color:       m.Color,
		IsPublic:    m.IsPublic,
		PhotoURL:    m.PhotoURL,
		PhotoMeta:   buildPhotoMeta(m.PhotoURL),
		Category:    m.Category,
		Latitude:    m.Latitude,
		Longitude:   m.Longitude,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toUser(r UserRow) core.User {
	return core.User{
		ID:           r.ID,
		Email:        r.Email,
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

// buildPhotoMeta extracts mime and decoded size from a data URI. Plain URLs
// and empty values yield a null column.
func buildPhotoMeta(photoURL string) datatypes.JSON {
	if !strings.HasPrefix(photoURL, "data:") {
		return nil
	}
	header, payload, ok := strings.Cut(photoURL, ",")
	if !ok {
		return nil
	}
	mime := strings.TrimPrefix(header, "data:")
	mime = strings.TrimSuffix(mime, ";base64")

	meta := photoMeta{
		Mime:  mime,
		Bytes: base64.StdEncoding.DecodedLen(len(payload)),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
