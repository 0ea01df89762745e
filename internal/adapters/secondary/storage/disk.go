package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jupiterclapton/postfeed/internal/core/ports"
)

// ImagesPrefix is the URL and directory prefix of stored images.
const ImagesPrefix = "images"

var allowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpg":  true,
	"image/jpeg": true,
}

// AllowedContentType reports whether an upload with this MIME type is kept.
func AllowedContentType(contentType string) bool {
	return allowedContentTypes[strings.ToLower(strings.TrimSpace(contentType))]
}

// DiskStore keeps images under <root>/images and hands out "images/<name>" URLs.
type DiskStore struct {
	root   string
	logger *slog.Logger
	wg     sync.WaitGroup
}

var _ ports.ImageStore = (*DiskStore)(nil)

func NewDiskStore(root string, logger *slog.Logger) (*DiskStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, ImagesPrefix), 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}
	return &DiskStore{root: abs, logger: logger}, nil
}

// Dir is the directory served under /images.
func (s *DiskStore) Dir() string {
	return filepath.Join(s.root, ImagesPrefix)
}

func (s *DiskStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	name := uuid.NewString() + "-" + sanitize(filename)
	dst := filepath.Join(s.Dir(), name)

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create image: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(dst)
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("close image: %w", err)
	}
	return path.Join(ImagesPrefix, name), nil
}

// Release removes the image in the background. Failures are only logged.
func (s *DiskStore) Release(imageURL string) {
	if imageURL == "" {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.remove(imageURL); err != nil {
			s.logger.Warn("failed to release image", "image_url", imageURL, "error", err)
		}
	}()
}

// Wait blocks until pending releases are done.
func (s *DiskStore) Wait() {
	s.wg.Wait()
}

func (s *DiskStore) remove(imageURL string) error {
	p, err := s.resolve(imageURL)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// resolve maps an image URL to a file inside the images directory.
func (s *DiskStore) resolve(imageURL string) (string, error) {
	clean := path.Clean("/" + strings.TrimPrefix(filepath.ToSlash(imageURL), "/"))
	rel := strings.TrimPrefix(clean, "/")
	if !strings.HasPrefix(rel, ImagesPrefix+"/") {
		return "", fmt.Errorf("image url %q is outside %s/", imageURL, ImagesPrefix)
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

func sanitize(filename string) string {
	base := filepath.Base(filepath.ToSlash(filename))
	base = path.Base(base)
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "image"
	}
	return out
}
