package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCopy_RoundTrip(t *testing.T) {
	t.Parallel()

	s, err := New(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src := writeTemp(t, "talk2me-upload-1.webm", "recording")

	url, err := s.Copy(context.Background(), src)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if !strings.HasPrefix(url, URLPrefix) || !strings.HasSuffix(url, ".webm") {
		t.Errorf("url = %q", url)
	}

	f, err := s.Open(strings.TrimPrefix(url, URLPrefix))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(f)
	f.Close()
	if string(data) != "recording" {
		t.Errorf("content = %q", data)
	}

	// The source is left alone; the pipeline removes it.
	if _, err := os.Stat(src); err != nil {
		t.Errorf("source removed: %v", err)
	}

	if err := s.Delete(context.Background(), url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(context.Background(), url); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 0 {
		t.Errorf("dir not empty after delete: %d entries", len(entries))
	}
}

func TestCopy_UniqueNames(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src := writeTemp(t, "a.wav", "x")

	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	for range 20 {
		wg.Go(func() {
			url, err := s.Copy(context.Background(), src)
			if err != nil {
				t.Errorf("Copy: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[url] {
				t.Errorf("duplicate url %q", url)
			}
			seen[url] = true
		})
	}
	wg.Wait()
	if len(seen) != 20 {
		t.Errorf("urls = %d, want 20", len(seen))
	}
}

func TestCopy_Errors(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Copy(context.Background(), filepath.Join(t.TempDir(), "missing.webm")); err == nil {
		t.Error("missing source accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Copy(ctx, writeTemp(t, "a.webm", "x")); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled Copy err = %v", err)
	}
}

func TestPath_RejectsTraversal(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", ".", "..", "../etc/passwd", "a/b.webm", `a\b.webm`, ".incoming-1"} {
		if _, err := s.Path(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Path(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
	if p, err := s.Path("123-abc.webm"); err != nil || filepath.Dir(p) != s.Dir() {
		t.Errorf("Path(valid) = %q, %v", p, err)
	}
}

func TestCopy_ExtensionFromContent(t *testing.T) {
	t.Parallel()

	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		content string
		ext     string
	}{
		{"RIFF\x24\x00\x00\x00WAVEfmt ", ".wav"},
		{"OggS\x00\x02", ".ogg"},
		{"ID3\x04\x00", ".mp3"},
		{"\x1a\x45\xdf\xa3", ".webm"},
		{"", ".webm"},
	}
	for _, tc := range tests {
		url, err := s.Copy(context.Background(), writeTemp(t, "talk2me-upload-x.webm", tc.content))
		if err != nil {
			t.Fatalf("Copy: %v", err)
		}
		if !strings.HasSuffix(url, tc.ext) {
			t.Errorf("content %q: url %q, want suffix %s", tc.content, url, tc.ext)
		}
	}
}
