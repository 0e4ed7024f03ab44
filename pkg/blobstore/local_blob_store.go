package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/saracen/walker"
)

const DefaultShardWidth = 2

// LocalBlobStore keeps each blob at <root>/<hash[:w]>/<hash[w:]>, where w is the
// shard width.
type LocalBlobStore struct {
	root       string
	shardWidth int
}

func NewLocalBlobStore(root string, shardWidth int) (*LocalBlobStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob store root is required")
	}

	if shardWidth < 1 {
		shardWidth = DefaultShardWidth
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}

	return &LocalBlobStore{root: abs, shardWidth: shardWidth}, nil
}

func (s *LocalBlobStore) Root() string {
	return s.root
}

func (s *LocalBlobStore) ShardWidth() int {
	return s.shardWidth
}

// PathFor returns where hash is stored.
func (s *LocalBlobStore) PathFor(hash string) (string, error) {
	if len(hash) <= s.shardWidth {
		return "", fmt.Errorf("%w: %q is shorter than the shard width", ErrInvalidHash, hash)
	}

	for _, r := range hash {
		if !isHashRune(r) {
			return "", fmt.Errorf("%w: %q", ErrInvalidHash, hash)
		}
	}

	return filepath.Join(s.root, hash[:s.shardWidth], hash[s.shardWidth:]), nil
}

func (s *LocalBlobStore) OpenWriter(ctx context.Context, hash string, offset int64) (Writer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.PathFor(hash)
	if err != nil {
		return nil, err
	}

	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d for %s", offset, hash)
	}

	if offset == 0 {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}

		f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}

		return &fileWriter{f: f}, nil
	}

	fi, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s has no bytes on disk, expected %d", ErrCorruptedResumeState, hash, offset)
	case err != nil:
		return nil, err
	case fi.Size() != offset:
		return nil, fmt.Errorf("%w: %s has %d bytes on disk, expected %d", ErrCorruptedResumeState, hash, fi.Size(), offset)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &fileWriter{f: f, written: offset}, nil
}

func (s *LocalBlobStore) OpenReader(ctx context.Context, hash string) (Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.PathFor(hash)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, mapNotExist(err, hash)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &fileReader{File: f, size: fi.Size()}, nil
}

func (s *LocalBlobStore) Delete(ctx context.Context, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.PathFor(hash)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	// Fails when the shard still holds other blobs, which is fine.
	_ = os.Remove(filepath.Dir(path))

	return nil
}

func (s *LocalBlobStore) Stat(ctx context.Context, hash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	path, err := s.PathFor(hash)
	if err != nil {
		return 0, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return 0, mapNotExist(err, hash)
	}

	return fi.Size(), nil
}

// Walk calls fn for every blob under the root. The tree is read in parallel, but
// fn is never called concurrently. Files that do not sit at shard depth are
// skipped.
func (s *LocalBlobStore) Walk(ctx context.Context, fn func(BlobInfo) error) error {
	var mu sync.Mutex

	walkFn := func(pathname string, fi os.FileInfo) error {
		if !fi.Mode().IsRegular() {
			return nil
		}

		hash, ok := s.hashFromPath(pathname)
		if !ok {
			return nil
		}

		mu.Lock()
		defer mu.Unlock()
		return fn(BlobInfo{ContentHash: hash, Size: fi.Size()})
	}

	return walker.WalkWithContext(ctx, s.root, walkFn)
}

func (s *LocalBlobStore) hashFromPath(pathname string) (string, bool) {
	rel, err := filepath.Rel(s.root, pathname)
	if err != nil {
		return "", false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || len(parts[0]) != s.shardWidth {
		return "", false
	}

	return parts[0] + parts[1], true
}

func isHashRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func mapNotExist(err error, hash string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, hash)
	}

	return err
}

type fileWriter struct {
	f       *os.File
	written int64
}

func (w *fileWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *fileWriter) Sync() error {
	return w.f.Sync()
}

func (w *fileWriter) Close() error {
	syncErr := w.f.Sync()
	closeErr := w.f.Close()
	if syncErr != nil {
		return syncErr
	}

	return closeErr
}

func (w *fileWriter) Written() int64 {
	return w.written
}

type fileReader struct {
	*os.File
	size int64
}

func (r *fileReader) Size() int64 {
	return r.size
}
