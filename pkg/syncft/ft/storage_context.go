package ft

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/apex/log"
	"github.com/driveline/syncd/pkg/blobstore"
	"github.com/driveline/syncd/pkg/clog"
	"github.com/driveline/syncd/pkg/lock"
	"github.com/driveline/syncd/pkg/obj"
	"github.com/driveline/syncd/pkg/syncdb/stor"
	"github.com/driveline/syncd/pkg/syncdb/syncmodel"
	"github.com/driveline/syncd/pkg/syncft/wire"
)

// StorageContext is the only storage surface sessions see. One instance is
// shared by every session; it holds no per-session state beyond the writer
// leases.
type StorageContext struct {
	meta      stor.MetadataStor
	blobs     blobstore.BlobStore
	hashLocks *lock.KeyLocker
	leases    *lock.LeaseTable
	Progress  *ProgressTracker
}

func NewStorageContext(meta stor.MetadataStor, blobs blobstore.BlobStore) (*StorageContext, error) {
	if obj.AnyNil(meta, blobs) {
		return nil, fmt.Errorf("metadata and blob stores are required")
	}

	return &StorageContext{
		meta:      meta,
		blobs:     blobs,
		hashLocks: lock.NewKeyLocker(),
		leases:    lock.NewLeaseTable(),
		Progress:  NewProgressTracker(),
	}, nil
}

// TransferPlan is the outcome of a Request. When Complete is set there is
// nothing to receive and Writer is nil.
type TransferPlan struct {
	ContentHash  string
	DeclaredSize uint64
	SyncedSize   uint64
	Complete     bool
	Writer       blobstore.Writer

	// ResumeReset is set when the bytes on disk disagreed with the recorded
	// progress and the blob was restarted from zero.
	ResumeReset bool
}

// BeginTransfer maps the requested path to the hash and, unless the blob is
// already complete, takes the writer lease and opens a writer at the resume
// point.
func (sc *StorageContext) BeginTransfer(ctx context.Context, sessionID, owner string, req wire.RequestMsg) (*TransferPlan, error) {
	var plan *TransferPlan
	hash := req.ContentHash

	err := sc.hashLocks.WithLock(hash, func() error {
		blob, err := sc.meta.UpsertFileRecord(ctx, owner, req.Directory, req.Name, hash, req.DeclaredSize)
		switch {
		case errors.Is(err, stor.ErrConstraintViolation):
			return protocolError("%s already holds different content", path.Join(req.Directory, req.Name))
		case err != nil:
			return storageError(err, "map %s to %s", path.Join(req.Directory, req.Name), hash)
		}

		plan = &TransferPlan{
			ContentHash:  hash,
			DeclaredSize: blob.DeclaredSize,
			SyncedSize:   blob.SyncedSize,
		}

		if blob.IsComplete() {
			plan.SyncedSize = blob.DeclaredSize
			plan.Complete = true
			if blob.DeclaredSize == 0 {
				return sc.ensureEmptyBlob(ctx, hash)
			}
			return nil
		}

		if !sc.leases.TryAcquire(hash, sessionID) {
			return fmt.Errorf("%w: %w: %s", ErrProtocol, ErrBlobBusy, hash)
		}

		w, err := sc.blobs.OpenWriter(ctx, hash, int64(blob.SyncedSize))
		if errors.Is(err, blobstore.ErrCorruptedResumeState) {
			clog.UsingCtx(clog.TransferCtx).WithFields(log.Fields{
				"event":       "resume_mismatch",
				"hash":        hash,
				"synced_size": blob.SyncedSize,
			}).WithError(fmt.Errorf("%w: %w", ErrResumeMismatch, err)).Error("Recorded progress disagrees with stored bytes, restarting from zero")

			if err := sc.meta.PersistProgress(ctx, hash, 0); err != nil {
				sc.leases.Release(hash, sessionID)
				return storageError(err, "reset progress for %s", hash)
			}

			plan.SyncedSize = 0
			plan.ResumeReset = true
			w, err = sc.blobs.OpenWriter(ctx, hash, 0)
		}

		if err != nil {
			sc.leases.Release(hash, sessionID)
			return storageError(err, "open writer for %s", hash)
		}

		plan.Writer = w
		return nil
	})

	if err != nil {
		return nil, err
	}

	return plan, nil
}

func (sc *StorageContext) ensureEmptyBlob(ctx context.Context, hash string) error {
	_, err := sc.blobs.Stat(ctx, hash)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, blobstore.ErrNotFound):
		return storageError(err, "stat %s", hash)
	}

	w, err := sc.blobs.OpenWriter(ctx, hash, 0)
	if err != nil {
		return storageError(err, "create empty blob %s", hash)
	}

	if err := w.Close(); err != nil {
		return storageError(err, "create empty blob %s", hash)
	}

	return nil
}

// Checkpoint makes the written bytes durable and records them.
func (sc *StorageContext) Checkpoint(ctx context.Context, hash string, w blobstore.Writer, syncedSize uint64) error {
	if err := w.Sync(); err != nil {
		return storageError(err, "sync %s", hash)
	}

	if err := sc.meta.PersistProgress(ctx, hash, syncedSize); err != nil {
		return storageError(err, "persist progress for %s", hash)
	}

	return nil
}

// FinishTransfer closes the writer, records progress and gives up the lease.
// Progress is recorded even when the close fails; a later resume compares it
// with what is on disk.
func (sc *StorageContext) FinishTransfer(ctx context.Context, sessionID, hash string, w blobstore.Writer, syncedSize uint64) error {
	defer sc.leases.Release(hash, sessionID)

	closeErr := w.Close()
	if err := sc.meta.PersistProgress(ctx, hash, syncedSize); err != nil {
		return storageError(err, "persist progress for %s", hash)
	}

	if closeErr != nil {
		return storageError(closeErr, "close writer for %s", hash)
	}

	return nil
}

// DeleteFile removes the owner's mapping named by msg, or every mapping the owner
// holds for the hash when msg carries no path. The reply carries the bytes that
// remain recorded for the blob, 0 once it is gone.
func (sc *StorageContext) DeleteFile(ctx context.Context, sessionID, owner string, msg wire.DeleteMsg) (wire.DeleteMsg, error) {
	hash := msg.ContentHash
	reply := wire.DeleteMsg{ContentHash: hash, Name: msg.Name, Directory: msg.Directory}

	err := sc.hashLocks.WithLock(hash, func() error {
		if holder, ok := sc.leases.Holder(hash); ok && holder != sessionID {
			return fmt.Errorf("%w: %w: %s", ErrProtocol, ErrBlobBusy, hash)
		}

		records, err := sc.recordsToDelete(ctx, owner, msg)
		if err != nil {
			return err
		}

		for _, r := range records {
			result, err := sc.meta.DeleteFileRecord(ctx, owner, r.Directory, r.Name)
			if err != nil {
				return storageError(err, "delete %s", r.FullPath())
			}

			reply.SyncedSize = result.SyncedSize
			if result.BlobRemoved {
				if err := sc.blobs.Delete(ctx, hash); err != nil {
					return storageError(err, "remove blob %s", hash)
				}
			}
		}

		return nil
	})

	return reply, err
}

func (sc *StorageContext) recordsToDelete(ctx context.Context, owner string, msg wire.DeleteMsg) ([]syncmodel.FileRecord, error) {
	if msg.HasPath() {
		record, err := sc.meta.GetFileRecord(ctx, owner, msg.Directory, msg.Name)
		switch {
		case errors.Is(err, stor.ErrNotFound):
			return nil, protocolError("no file %s", path.Join(msg.Directory, msg.Name))
		case err != nil:
			return nil, storageError(err, "get %s", path.Join(msg.Directory, msg.Name))
		case record.ContentHash != msg.ContentHash:
			return nil, protocolError("%s does not hold %s", path.Join(msg.Directory, msg.Name), msg.ContentHash)
		}

		return []syncmodel.FileRecord{*record}, nil
	}

	records, err := sc.meta.ListFileRecordsByHash(ctx, owner, msg.ContentHash)
	if err != nil {
		return nil, storageError(err, "list files for %s", msg.ContentHash)
	}

	if len(records) == 0 {
		return nil, protocolError("no files hold %s", msg.ContentHash)
	}

	return records, nil
}

// OpenBlob returns the record at (owner, dir, name) and a reader over its
// content. Content that is still being uploaded is refused with ErrNotReady.
func (sc *StorageContext) OpenBlob(ctx context.Context, owner, dir, name string) (*syncmodel.FileRecord, blobstore.Reader, error) {
	record, err := sc.meta.GetFileRecord(ctx, owner, dir, name)
	if err != nil {
		return nil, nil, err
	}

	blob, err := sc.meta.FindBlob(ctx, record.ContentHash)
	if err != nil {
		return nil, nil, err
	}

	if !blob.IsComplete() {
		return nil, nil, fmt.Errorf("%w: %s has %d of %d bytes", ErrNotReady, record.FullPath(), blob.SyncedSize, blob.DeclaredSize)
	}

	r, err := sc.blobs.OpenReader(ctx, record.ContentHash)
	if err != nil {
		return nil, nil, err
	}

	return record, r, nil
}

func (sc *StorageContext) ListFiles(ctx context.Context, owner string) ([]syncmodel.FileRecord, error) {
	return sc.meta.ListFileRecords(ctx, owner)
}

// Leases reports which session holds each blob's writer.
func (sc *StorageContext) Leases() map[string]string {
	return sc.leases.Snapshot()
}
