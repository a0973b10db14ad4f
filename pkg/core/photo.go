package core

import (
	"encoding/base64"
	"errors"
	"strings"
)

// MaxPhotoBytes is the photo attachment size ceiling (5 MB), enforced before
// any encode or upload attempt.
const MaxPhotoBytes = 5 << 20

// ErrPhotoTooLarge is returned when a photo attachment exceeds MaxPhotoBytes.
var ErrPhotoTooLarge = errors.New("photo exceeds 5MB size limit")

// ValidatePhoto checks a photo_url value. Plain URLs and the empty string
// pass through; data URIs are size-checked against MaxPhotoBytes using the
// decoded payload length.
func ValidatePhoto(photoURL string) error {
	if photoURL == "" || !strings.HasPrefix(photoURL, "data:") {
		return nil
	}
	_, payload, ok := strings.Cut(photoURL, ",")
	if !ok {
		return nil
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxPhotoBytes {
		return ErrPhotoTooLarge
	}
	return nil
}
