package stor

import (
	"context"

	"github.com/driveline/syncd/pkg/syncdb/syncmodel"
)

// DeleteResult describes the blob a deleted FileRecord pointed at, after the
// delete was applied.
type DeleteResult struct {
	ContentHash string
	RefCount    int64
	SyncedSize  uint64

	// BlobRemoved is true when the last reference went away and the caller must
	// remove the blob's bytes.
	BlobRemoved bool
}

// MetadataStor is the relational side of the storage model: file records and the
// shared blobs they point at. Every multi-step method is a single transaction.
type MetadataStor interface {
	FindBlob(ctx context.Context, hash string) (*syncmodel.SharedBlob, error)

	// UpsertFileRecord maps (owner, dir, name) to hash. A repeated call with the
	// same hash is a no-op; mapping an existing path to a different hash fails
	// with ErrConstraintViolation. The returned blob reflects the post-call state.
	UpsertFileRecord(ctx context.Context, owner, dir, name, hash string, declaredSize uint64) (*syncmodel.SharedBlob, error)

	// PersistProgress records synced bytes for hash, clamped to the declared size.
	PersistProgress(ctx context.Context, hash string, syncedSize uint64) error

	DeleteFileRecord(ctx context.Context, owner, dir, name string) (DeleteResult, error)
	GetFileRecord(ctx context.Context, owner, dir, name string) (*syncmodel.FileRecord, error)
	ListFileRecords(ctx context.Context, owner string) ([]syncmodel.FileRecord, error)
	ListFileRecordsByHash(ctx context.Context, owner, hash string) ([]syncmodel.FileRecord, error)
	ListBlobs(ctx context.Context) ([]syncmodel.SharedBlob, error)
	CountFileRecordsForHash(ctx context.Context, hash string) (int64, error)
}
