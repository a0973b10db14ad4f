package core

import "errors"

// Store sentinel errors, shared by every backend implementation.
var (
	ErrNotFound   = errors.New("record not found")
	ErrUserExists = errors.New("user already exists")
)
