package stor

import (
	"context"
	"errors"
	"time"

	"github.com/driveline/syncd/pkg/syncdb/syncmodel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormMetadataStor struct {
	db *gorm.DB
}

func NewGormMetadataStor(db *gorm.DB) *GormMetadataStor {
	return &GormMetadataStor{db: db}
}

func (s *GormMetadataStor) FindBlob(ctx context.Context, hash string) (*syncmodel.SharedBlob, error) {
	var blob syncmodel.SharedBlob
	if err := s.db.WithContext(ctx).Where("content_hash = ?", hash).First(&blob).Error; err != nil {
		return nil, translateError(err, "find blob %s", hash)
	}

	return &blob, nil
}

func (s *GormMetadataStor) UpsertFileRecord(ctx context.Context, owner, dir, name, hash string, declaredSize uint64) (*syncmodel.SharedBlob, error) {
	var blob *syncmodel.SharedBlob

	err := WithTxRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		blob = nil

		existing, err := findRecord(tx, owner, dir, name)
		switch {
		case err == nil && existing.ContentHash != hash:
			return ErrConstraintViolation
		case err == nil:
			// Same mapping again, nothing to change.
			blob, err = lockBlob(tx, hash)
			return err
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		blob, err = lockBlob(tx, hash)
		switch {
		case err == nil:
			if err := tx.Model(&syncmodel.SharedBlob{}).
				Where("content_hash = ?", hash).
				Update("ref_count", gorm.Expr("ref_count + ?", 1)).Error; err != nil {
				return err
			}
			blob.RefCount++
		case errors.Is(err, gorm.ErrRecordNotFound):
			blob = &syncmodel.SharedBlob{
				ContentHash:   hash,
				RefCount:      1,
				DeclaredSize:  declaredSize,
				SyncedSize:    0,
				SyncCompleted: declaredSize == 0,
			}
			if err := tx.Create(blob).Error; err != nil {
				return err
			}
		default:
			return err
		}

		record := &syncmodel.FileRecord{
			OwnerID:        owner,
			Directory:      dir,
			Name:           name,
			ContentHash:    hash,
			FileCreateTime: time.Now(),
		}

		return tx.Create(record).Error
	})

	if err != nil {
		return nil, translateError(err, "upsert %s %s/%s -> %s", owner, dir, name, hash)
	}

	return blob, nil
}

func (s *GormMetadataStor) PersistProgress(ctx context.Context, hash string, syncedSize uint64) error {
	err := WithTxRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		blob, err := lockBlob(tx, hash)
		if err != nil {
			return err
		}

		if syncedSize > blob.DeclaredSize {
			syncedSize = blob.DeclaredSize
		}

		return tx.Model(&syncmodel.SharedBlob{}).
			Where("content_hash = ?", hash).
			Updates(map[string]interface{}{
				"synced_size":    syncedSize,
				"sync_completed": syncedSize >= blob.DeclaredSize,
			}).Error
	})

	return translateError(err, "persist progress for %s", hash)
}

func (s *GormMetadataStor) DeleteFileRecord(ctx context.Context, owner, dir, name string) (DeleteResult, error) {
	var result DeleteResult

	err := WithTxRetry(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		result = DeleteResult{}

		record, err := findRecord(tx, owner, dir, name)
		if err != nil {
			return err
		}

		result.ContentHash = record.ContentHash

		if err := tx.Delete(&syncmodel.FileRecord{}, record.ID).Error; err != nil {
			return err
		}

		blob, err := lockBlob(tx, record.ContentHash)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Dangling record. The bytes, if any, have no other owner.
			result.BlobRemoved = true
			return nil
		case err != nil:
			return err
		}

		result.RefCount = blob.RefCount - 1
		if result.RefCount <= 0 {
			result.RefCount = 0
			result.BlobRemoved = true
			return tx.Where("content_hash = ?", blob.ContentHash).Delete(&syncmodel.SharedBlob{}).Error
		}

		result.SyncedSize = blob.SyncedSize
		return tx.Model(&syncmodel.SharedBlob{}).
			Where("content_hash = ?", blob.ContentHash).
			Update("ref_count", gorm.Expr("ref_count - ?", 1)).Error
	})

	if err != nil {
		return DeleteResult{}, translateError(err, "delete %s %s/%s", owner, dir, name)
	}

	return result, nil
}

func (s *GormMetadataStor) GetFileRecord(ctx context.Context, owner, dir, name string) (*syncmodel.FileRecord, error) {
	record, err := findRecord(s.db.WithContext(ctx), owner, dir, name)
	if err != nil {
		return nil, translateError(err, "get %s %s/%s", owner, dir, name)
	}

	return record, nil
}

func (s *GormMetadataStor) ListFileRecords(ctx context.Context, owner string) ([]syncmodel.FileRecord, error) {
	var records []syncmodel.FileRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", owner).
		Order("directory, name").
		Find(&records).Error

	return records, translateError(err, "list records for %s", owner)
}

func (s *GormMetadataStor) ListFileRecordsByHash(ctx context.Context, owner, hash string) ([]syncmodel.FileRecord, error) {
	var records []syncmodel.FileRecord
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND content_hash = ?", owner, hash).
		Order("directory, name").
		Find(&records).Error

	return records, translateError(err, "list records for %s with hash %s", owner, hash)
}

func (s *GormMetadataStor) ListBlobs(ctx context.Context) ([]syncmodel.SharedBlob, error) {
	var blobs []syncmodel.SharedBlob
	err := s.db.WithContext(ctx).Order("content_hash").Find(&blobs).Error
	return blobs, translateError(err, "list blobs")
}

func (s *GormMetadataStor) CountFileRecordsForHash(ctx context.Context, hash string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&syncmodel.FileRecord{}).
		Where("content_hash = ?", hash).
		Count(&count).Error

	return count, translateError(err, "count records for %s", hash)
}

func findRecord(db *gorm.DB, owner, dir, name string) (*syncmodel.FileRecord, error) {
	var record syncmodel.FileRecord
	err := db.Where("owner_id = ? AND directory = ? AND name = ?", owner, dir, name).First(&record).Error
	if err != nil {
		return nil, err
	}

	return &record, nil
}

// lockBlob reads a blob row with SELECT ... FOR UPDATE. sqlite has no row locks
// and drops the clause; its single writer gives the same isolation.
func lockBlob(tx *gorm.DB, hash string) (*syncmodel.SharedBlob, error) {
	var blob syncmodel.SharedBlob
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("content_hash = ?", hash).
		First(&blob).Error
	if err != nil {
		return nil, err
	}

	return &blob, nil
}
