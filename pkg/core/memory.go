// Package core holds the domain records shared across the service: memories,
// users, positions, and their validation rules.
package core

import "time"

// DefaultColor is used for markers whose memory has no color set.
const DefaultColor = "#F9A8D4"

// Memory is a geo-located journal entry, the domain's core record.
type Memory struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color"`
	IsPublic    bool      `json:"is_public"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Category    string    `json:"category,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Denormalized owner profile, filled in by the store on reads.
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// HasValidPosition reports whether the memory carries renderable coordinates.
func (m *Memory) HasValidPosition() bool {
	return m.Latitude >= -90 && m.Latitude <= 90 &&
		m.Longitude >= -180 && m.Longitude <= 180
}

// MarkerColor returns the memory's color, falling back to DefaultColor.
func (m *Memory) MarkerColor() string {
	if m.Color == "" {
		return DefaultColor
	}
	return m.Color
}

// MemoryUpdate holds the mutable fields of a memory. Nil pointers leave the
// stored value unchanged.
type MemoryUpdate struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Color       *string  `json:"color,omitempty"`
	IsPublic    *bool    `json:"is_public,omitempty"`
	PhotoURL    *string  `json:"photo_url,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

// Apply copies the set fields onto m and bumps UpdatedAt.
func (u *MemoryUpdate) Apply(m *Memory) {
	if u.Title != nil {
		m.Title = *u.Title
	}
	if u.Description != nil {
		m.Description = *u.Description
	}
	if u.Color != nil {
		m.Color = *u.Color
	}
	if u.IsPublic != nil {
		m.IsPublic = *u.IsPublic
	}
	if u.PhotoURL != nil {
		m.PhotoURL = *u.PhotoURL
	}
	if u.Category != nil {
		m.Category = *u.Category
	}
	if u.Latitude != nil {
		m.Latitude = *u.Latitude
	}
	if u.Longitude != nil {
		m.Longitude = *u.Longitude
	}
	m.UpdatedAt = time.Now().UTC()
}
