package blobstore

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound             = errors.New("blob not found")
	ErrCorruptedResumeState = errors.New("corrupted resume state")
	ErrInvalidHash          = errors.New("invalid content hash")
)

// Writer appends to a blob. Close syncs before closing.
type Writer interface {
	io.Writer
	Sync() error
	Close() error

	// Written is the physical size of the blob, including bytes that were there
	// before the writer was opened.
	Written() int64
}

type Reader interface {
	io.ReadSeekCloser
	Size() int64
}

// BlobInfo is what Walk reports for each stored blob.
type BlobInfo struct {
	ContentHash string
	Size        int64
}

// BlobStore is content-addressed byte storage. Placement depends only on the
// content hash.
type BlobStore interface {
	// OpenWriter opens hash for writing at offset. Offset 0 truncates; any other
	// offset must equal the blob's physical size or ErrCorruptedResumeState is
	// returned.
	OpenWriter(ctx context.Context, hash string, offset int64) (Writer, error)
	OpenReader(ctx context.Context, hash string) (Reader, error)

	// Delete removes hash. Deleting a missing blob is not an error.
	Delete(ctx context.Context, hash string) error
	Stat(ctx context.Context, hash string) (int64, error)
	Walk(ctx context.Context, fn func(BlobInfo) error) error
	Root() string
}
