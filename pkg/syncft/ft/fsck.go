package ft

import (
	"context"
	"errors"
	"sort"

	"github.com/apex/log"
	"github.com/driveline/syncd/pkg/blobstore"
	"github.com/driveline/syncd/pkg/clog"
	"github.com/driveline/syncd/pkg/syncdb/syncmodel"
)

type FsckIssue string

const (
	// IssueOrphan is a file in the blob store with no shared_blobs row.
	IssueOrphan FsckIssue = "orphan"

	// IssueMissing is a row that claims bytes the blob store does not have.
	IssueMissing FsckIssue = "missing"

	// IssueSizeMismatch is a file whose size differs from the recorded progress.
	IssueSizeMismatch FsckIssue = "size_mismatch"
)

type FsckFinding struct {
	ContentHash  string    `json:"content_hash"`
	Issue        FsckIssue `json:"issue"`
	RecordedSize uint64    `json:"recorded_size"`
	PhysicalSize int64     `json:"physical_size"`
	Repaired     bool      `json:"repaired"`
}

type FsckReport struct {
	BlobsChecked int           `json:"blobs_checked"`
	FilesWalked  int           `json:"files_walked"`
	Findings     []FsckFinding `json:"findings"`
}

func (r *FsckReport) Clean() bool {
	return len(r.Findings) == 0
}

// Fsck cross-checks the blob store against the shared_blobs table. With repair
// set, orphan files are deleted and blobs whose bytes disagree with their row
// are truncated and reset to zero progress so the next sync starts over. Blobs
// under an active writer lease are skipped.
func (sc *StorageContext) Fsck(ctx context.Context, repair bool) (*FsckReport, error) {
	physical := make(map[string]int64)
	err := sc.blobs.Walk(ctx, func(info blobstore.BlobInfo) error {
		physical[info.ContentHash] = info.Size
		return nil
	})
	if err != nil {
		return nil, storageError(err, "walk blob store")
	}

	rows, err := sc.meta.ListBlobs(ctx)
	if err != nil {
		return nil, storageError(err, "list blobs")
	}

	report := &FsckReport{BlobsChecked: len(rows), FilesWalked: len(physical)}
	logger := clog.UsingCtx(clog.StoreCtx)

	for _, row := range rows {
		size, onDisk := physical[row.ContentHash]
		delete(physical, row.ContentHash)

		if _, busy := sc.leases.Holder(row.ContentHash); busy {
			continue
		}

		finding, ok := checkRow(row, size, onDisk)
		if !ok {
			continue
		}

		if repair {
			if err := sc.resetBlob(ctx, row); err != nil {
				return report, err
			}
			finding.Repaired = true
		}

		logger.WithFields(log.Fields{
			"hash":     row.ContentHash,
			"issue":    finding.Issue,
			"recorded": row.SyncedSize,
			"physical": size,
			"repaired": finding.Repaired,
		}).Warn("Fsck finding")

		report.Findings = append(report.Findings, finding)
	}

	// Whatever is left has no row.
	for hash, size := range physical {
		finding := FsckFinding{ContentHash: hash, Issue: IssueOrphan, PhysicalSize: size}
		if repair {
			if err := sc.blobs.Delete(ctx, hash); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
				return report, storageError(err, "delete orphan %s", hash)
			}
			finding.Repaired = true
		}

		logger.WithFields(log.Fields{"hash": hash, "issue": IssueOrphan, "repaired": finding.Repaired}).Warn("Fsck finding")
		report.Findings = append(report.Findings, finding)
	}

	sort.Slice(report.Findings, func(i, j int) bool {
		return report.Findings[i].ContentHash < report.Findings[j].ContentHash
	})

	return report, nil
}

func checkRow(row syncmodel.SharedBlob, size int64, onDisk bool) (FsckFinding, bool) {
	finding := FsckFinding{ContentHash: row.ContentHash, RecordedSize: row.SyncedSize, PhysicalSize: size}

	switch {
	case !onDisk:
		// A row with no progress and no file is a transfer that never started.
		if row.SyncedSize == 0 && !row.SyncCompleted {
			return finding, false
		}
		finding.Issue = IssueMissing
	case uint64(size) != row.SyncedSize:
		finding.Issue = IssueSizeMismatch
	default:
		return finding, false
	}

	return finding, true
}

func (sc *StorageContext) resetBlob(ctx context.Context, row syncmodel.SharedBlob) error {
	return sc.hashLocks.WithLock(row.ContentHash, func() error {
		w, err := sc.blobs.OpenWriter(ctx, row.ContentHash, 0)
		if err != nil {
			return storageError(err, "truncate %s", row.ContentHash)
		}

		if err := w.Close(); err != nil {
			return storageError(err, "truncate %s", row.ContentHash)
		}

		if err := sc.meta.PersistProgress(ctx, row.ContentHash, 0); err != nil {
			return storageError(err, "reset progress for %s", row.ContentHash)
		}

		return nil
	})
}
