package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndRelease(t *testing.T) {
	root := t.TempDir()
	s, err := NewDiskStore(root, nil)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	url, err := s.Save(context.Background(), "../../My Photo.png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(url, "images/") || !strings.HasSuffix(url, "-My_Photo.png") {
		t.Fatalf("url = %q", url)
	}

	onDisk := filepath.Join(root, filepath.FromSlash(url))
	data, err := os.ReadFile(onDisk)
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("read stored image: %q, %v", data, err)
	}

	s.Release(url)
	s.Wait()
	if _, err := os.Stat(onDisk); !os.IsNotExist(err) {
		t.Fatalf("image still on disk: %v", err)
	}

	// Releasing twice is harmless.
	s.Release(url)
	s.Wait()
}

func TestReleaseRefusesEscapes(t *testing.T) {
	root := t.TempDir()
	s, err := NewDiskStore(filepath.Join(root, "uploads"), nil)
	if err != nil {
		t.Fatal(err)
	}
	victim := filepath.Join(root, "uploads", "secret.txt")
	if err := os.WriteFile(victim, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, url := range []string{"secret.txt", "images/../secret.txt", "../uploads/secret.txt"} {
		if _, err := s.resolve(url); err == nil {
			t.Fatalf("resolve(%q) should fail", url)
		}
		s.Release(url)
	}
	s.Wait()

	if _, err := os.Stat(victim); err != nil {
		t.Fatalf("file outside images/ was removed: %v", err)
	}
}

func TestAllowedContentType(t *testing.T) {
	tests := map[string]bool{
		"image/png":       true,
		"image/jpeg":      true,
		"image/jpg":       true,
		"IMAGE/PNG":       true,
		"image/gif":       false,
		"application/pdf": false,
		"":                false,
	}
	for ct, want := range tests {
		if got := AllowedContentType(ct); got != want {
			t.Fatalf("AllowedContentType(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"cat.png":        "cat.png",
		"a b (1).jpg":    "a_b__1_.jpg",
		"..":             "image",
		"dir/nested.png": "nested.png",
	}
	for in, want := range tests {
		if got := sanitize(in); got != want {
			t.Fatalf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
