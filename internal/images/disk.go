package images

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// Disk stores images as files in a single directory.
type Disk struct {
	root string
}

// NewDisk returns a Disk rooted at dir, creating the directory if needed.
func NewDisk(dir string) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("images: empty uploads directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating uploads directory: %w", err)
	}
	return &Disk{root: dir}, nil
}

// Root returns the directory images are stored in.
func (d *Disk) Root() string {
	return d.root
}

// Save writes content to a newly generated file. An existing file is never
// overwritten; a partially written file is removed.
func (d *Disk) Save(_ context.Context, originalName string, content []byte) (string, error) {
	name := NewName(originalName)
	p := filepath.Join(d.root, name)

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating image file: %w", err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(p)
		return "", fmt.Errorf("writing image file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(p)
		return "", fmt.Errorf("syncing image file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return "", fmt.Errorf("closing image file: %w", err)
	}

	return name, nil
}

// Delete removes the named file. A missing file is logged and ignored.
func (d *Disk) Delete(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(d.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("image already gone", "name", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("removing image file: %w", err)
	}
	return nil
}

// Exists reports whether the named file is present.
func (d *Disk) Exists(_ context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}

	_, err := os.Stat(filepath.Join(d.root, name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking image file: %w", err)
	}
	return true, nil
}

// Handler serves stored files by name. Directory listings are not served.
// Mount it with the public prefix stripped.
func (d *Disk) Handler() http.Handler {
	files := http.FileServer(http.Dir(d.root))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path
		if len(name) > 0 && name[0] == '/' {
			name = name[1:]
		}
		if checkName(name) != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}
