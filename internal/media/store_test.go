package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/notepid/twilight_forum/internal/domain"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestStoreAndDelete(t *testing.T) {
	s, err := NewStore(t.TempDir(), 1024)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	ref, err := s.Store(ctx, pngHeader)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(ref, URLPrefix) || !strings.HasSuffix(ref, ".png") {
		t.Fatalf("unexpected ref %q", ref)
	}
	path, err := s.Path(ref)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(data, pngHeader) {
		t.Fatalf("stored content mismatch: %v", err)
	}

	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file to be gone, got %v", err)
	}
	if err := s.Delete(ctx, ref); err != nil {
		t.Fatalf("second delete should be a no-op, got %v", err)
	}
}

func TestStoreRejects(t *testing.T) {
	s, err := NewStore(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	tests := []struct {
		name string
		data []byte
	}{
		{"text", []byte("hello")},
		{"html", []byte("<html></html>")},
		{"too large", append(append([]byte{}, pngHeader...), make([]byte, 32)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Store(ctx, tt.data); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	s, err := NewStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, ref := range []string{"", "/uploads/", "/uploads/../secret", "../etc/passwd", "/uploads/a/b.png", ".."} {
		if _, err := s.Path(ref); err == nil {
			t.Fatalf("expected %q to be rejected", ref)
		}
	}
	if s.MaxBytes() != DefaultMaxBytes {
		t.Fatalf("expected default limit, got %d", s.MaxBytes())
	}
}
