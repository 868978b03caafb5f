// Package images stores uploaded item images. It knows nothing about items:
// it validates uploads, persists them under generated names, and removes them.
package images

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
)

// MaxSize is the largest accepted image, in bytes.
const MaxSize = 10 << 20

// AllowedExtensions lists the accepted file extensions (lowercase, no dot).
var AllowedExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"webp": true,
	"gif":  true,
}

var (
	// ErrUnsupportedType is returned for files whose extension is not allowed.
	ErrUnsupportedType = errors.New("file type not allowed")

	// ErrTooLarge is returned for files larger than MaxSize.
	ErrTooLarge = errors.New("image exceeds 10 MiB")

	// ErrInvalidName is returned for stored names that are not a single
	// plain path element.
	ErrInvalidName = errors.New("invalid image name")
)

// Store persists image content under generated names.
type Store interface {
	// Save writes content under a fresh name that keeps the extension of
	// originalName and returns that name.
	Save(ctx context.Context, originalName string, content []byte) (string, error)
	// Delete removes the named image. Deleting a missing image is not an error.
	Delete(ctx context.Context, name string) error
	// Exists reports whether the named image is present.
	Exists(ctx context.Context, name string) (bool, error)
}

// Validate checks an upload's filename and size. Only the extension is
// inspected; the content itself is stored as-is.
func Validate(filename string, size int64) error {
	if !AllowedExtensions[Extension(filename)] {
		return ErrUnsupportedType
	}
	if size > MaxSize {
		return ErrTooLarge
	}
	return nil
}

// Extension returns the lowercased text after the last dot of filename, or
// "" when there is none.
func Extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// NewName generates a stored name for an upload: a random UUID followed by
// the upload's lowercased extension. Collisions are not checked for.
func NewName(originalName string) string {
	return uuid.NewString() + "." + Extension(originalName)
}

// checkName rejects names that could escape the store's namespace.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || path.Base(name) != name {
		return ErrInvalidName
	}
	return nil
}
