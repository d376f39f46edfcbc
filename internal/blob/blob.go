// Package blob keeps attempt recordings on local disk and serves them back
// under /uploads/.
//
// Every stored recording gets a fresh name of the form
// <unix-nanos>-<uuid><ext>, so concurrent writers never collide and names
// sort by arrival. The extension follows the sniffed container; unknown
// content is stored as .webm.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/talk2me/internal/attempt"
	"github.com/MrWong99/talk2me/pkg/audio"
)

// URLPrefix is the path under which blobs are served.
const URLPrefix = "/uploads/"

// ErrInvalidName is returned for names that are empty, contain a path
// separator or otherwise escape the blob directory.
var ErrInvalidName = errors.New("blob: invalid name")

var _ attempt.BlobStore = (*Store)(nil)

// Store writes recordings into a single directory.
type Store struct {
	dir string
	now func() time.Time
}

// New creates dir if needed and returns a [Store] over it.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create dir %q: %w", dir, err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the directory blobs are written to.
func (s *Store) Dir() string { return s.dir }

// Copy implements [attempt.BlobStore]. The file is written under a
// temporary name and renamed into place, so readers never see a partial
// recording.
func (s *Store) Copy(ctx context.Context, tempPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	src, err := os.Open(tempPath)
	if err != nil {
		return "", fmt.Errorf("blob: open source: %w", err)
	}
	defer src.Close()

	var header [16]byte
	n, _ := io.ReadFull(src, header[:])
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("blob: rewind source: %w", err)
	}
	name := strconv.FormatInt(s.now().UnixNano(), 10) + "-" + uuid.NewString() +
		audio.Extension(audio.Sniff(header[:n]))

	tmp, err := os.CreateTemp(s.dir, ".incoming-*")
	if err != nil {
		return "", fmt.Errorf("blob: create: %w", err)
	}
	_, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("blob: write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("blob: commit %s: %w", name, err)
	}
	return URLPrefix + name, nil
}

// Delete implements [attempt.BlobStore].
func (s *Store) Delete(_ context.Context, url string) error {
	path, err := s.Path(strings.TrimPrefix(url, URLPrefix))
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blob: delete: %w", err)
	}
	return nil
}

// Path resolves a blob name to its file path, rejecting anything that is
// not a plain file name inside the directory.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Open opens the named blob for reading.
func (s *Store) Open(name string) (*os.File, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}
