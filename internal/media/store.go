// Package media stores message image attachments on local disk.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/notepid/twilight_forum/internal/domain"
)

// URLPrefix is the public path under which stored images are served.
const URLPrefix = "/uploads/"

// DefaultMaxBytes caps a single attachment.
const DefaultMaxBytes = 5 << 20

// Allowed content types and the extension each is stored with.
var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Store keeps images in a single directory under random names.
type Store struct {
	root     string
	maxBytes int64
}

// NewStore creates the upload directory if needed.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{root: abs, maxBytes: maxBytes}, nil
}

// MaxBytes returns the per-file size limit.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Store writes data and returns its public reference.
func (s *Store) Store(ctx context.Context, data []byte) (string, error) {
	if int64(len(data)) > s.maxBytes {
		return "", domain.Invalid("image", fmt.Sprintf("Image too large: limit is %d bytes", s.maxBytes))
	}
	ext, ok := allowedTypes[http.DetectContentType(data)]
	if !ok {
		return "", domain.Invalid("image", "Unsupported image type: use PNG, JPEG, GIF or WEBP")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.root, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	slog.Debug("image stored", "name", name, "bytes", len(data))
	return URLPrefix + name, nil
}

// Delete removes the file behind ref. Missing files are not an error.
func (s *Store) Delete(_ context.Context, ref string) error {
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete image %s: %w", ref, err)
	}
	return nil
}

// Path resolves a reference or bare file name to a file inside the upload
// directory, rejecting anything that would escape it.
func (s *Store) Path(ref string) (string, error) {
	name := strings.TrimPrefix(ref, URLPrefix)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid image reference %q", ref)
	}
	path := filepath.Join(s.root, name)
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("image reference outside upload dir: %q", ref)
	}
	return path, nil
}
