package stor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/driveline/syncd/pkg/syncdb/syncmodel"
)

type pathKey struct {
	owner, dir, name string
}

// InMemoryMetadataStor keeps records and blobs in maps behind one mutex. Each
// method holds the mutex for its whole body, which gives it the same atomicity
// as the gorm transactions.
type InMemoryMetadataStor struct {
	mu      sync.Mutex
	nextID  uint
	records map[pathKey]syncmodel.FileRecord
	blobs   map[string]syncmodel.SharedBlob
}

func NewInMemoryMetadataStor() *InMemoryMetadataStor {
	return &InMemoryMetadataStor{
		records: make(map[pathKey]syncmodel.FileRecord),
		blobs:   make(map[string]syncmodel.SharedBlob),
	}
}

func (s *InMemoryMetadataStor) FindBlob(_ context.Context, hash string) (*syncmodel.SharedBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("find blob %s: %w", hash, ErrNotFound)
	}

	return &blob, nil
}

func (s *InMemoryMetadataStor) UpsertFileRecord(_ context.Context, owner, dir, name, hash string, declaredSize uint64) (*syncmodel.SharedBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pathKey{owner, dir, name}
	if existing, ok := s.records[key]; ok {
		if existing.ContentHash != hash {
			return nil, fmt.Errorf("upsert %s %s/%s -> %s: %w", owner, dir, name, hash, ErrConstraintViolation)
		}

		blob, ok := s.blobs[hash]
		if !ok {
			return nil, fmt.Errorf("upsert %s %s/%s -> %s: blob: %w", owner, dir, name, hash, ErrNotFound)
		}
		return &blob, nil
	}

	now := time.Now()
	blob, ok := s.blobs[hash]
	if ok {
		blob.RefCount++
	} else {
		blob = syncmodel.SharedBlob{
			ContentHash:   hash,
			RefCount:      1,
			DeclaredSize:  declaredSize,
			SyncCompleted: declaredSize == 0,
			CreateTime:    now,
		}
	}
	s.blobs[hash] = blob

	s.nextID++
	s.records[key] = syncmodel.FileRecord{
		ID:               s.nextID,
		OwnerID:          owner,
		Directory:        dir,
		Name:             name,
		ContentHash:      hash,
		FileCreateTime:   now,
		RecordCreateTime: now,
	}

	return &blob, nil
}

func (s *InMemoryMetadataStor) PersistProgress(_ context.Context, hash string, syncedSize uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, ok := s.blobs[hash]
	if !ok {
		return fmt.Errorf("persist progress for %s: %w", hash, ErrNotFound)
	}

	if syncedSize > blob.DeclaredSize {
		syncedSize = blob.DeclaredSize
	}

	blob.SyncedSize = syncedSize
	blob.SyncCompleted = blob.IsComplete()
	s.blobs[hash] = blob

	return nil
}

func (s *InMemoryMetadataStor) DeleteFileRecord(_ context.Context, owner, dir, name string) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pathKey{owner, dir, name}
	record, ok := s.records[key]
	if !ok {
		return DeleteResult{}, fmt.Errorf("delete %s %s/%s: %w", owner, dir, name, ErrNotFound)
	}

	delete(s.records, key)

	result := DeleteResult{ContentHash: record.ContentHash}
	blob, ok := s.blobs[record.ContentHash]
	if !ok {
		result.BlobRemoved = true
		return result, nil
	}

	blob.RefCount--
	if blob.RefCount <= 0 {
		delete(s.blobs, blob.ContentHash)
		result.BlobRemoved = true
		return result, nil
	}

	s.blobs[blob.ContentHash] = blob
	result.RefCount = blob.RefCount
	result.SyncedSize = blob.SyncedSize

	return result, nil
}

func (s *InMemoryMetadataStor) GetFileRecord(_ context.Context, owner, dir, name string) (*syncmodel.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[pathKey{owner, dir, name}]
	if !ok {
		return nil, fmt.Errorf("get %s %s/%s: %w", owner, dir, name, ErrNotFound)
	}

	return &record, nil
}

func (s *InMemoryMetadataStor) ListFileRecords(_ context.Context, owner string) ([]syncmodel.FileRecord, error) {
	return s.filterRecords(func(r syncmodel.FileRecord) bool { return r.OwnerID == owner }), nil
}

func (s *InMemoryMetadataStor) ListFileRecordsByHash(_ context.Context, owner, hash string) ([]syncmodel.FileRecord, error) {
	return s.filterRecords(func(r syncmodel.FileRecord) bool {
		return r.OwnerID == owner && r.ContentHash == hash
	}), nil
}

func (s *InMemoryMetadataStor) ListBlobs(_ context.Context) ([]syncmodel.SharedBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blobs := make([]syncmodel.SharedBlob, 0, len(s.blobs))
	for _, b := range s.blobs {
		blobs = append(blobs, b)
	}

	sort.Slice(blobs, func(i, j int) bool { return blobs[i].ContentHash < blobs[j].ContentHash })
	return blobs, nil
}

func (s *InMemoryMetadataStor) CountFileRecordsForHash(_ context.Context, hash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, r := range s.records {
		if r.ContentHash == hash {
			count++
		}
	}

	return count, nil
}

func (s *InMemoryMetadataStor) filterRecords(keep func(syncmodel.FileRecord) bool) []syncmodel.FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []syncmodel.FileRecord
	for _, r := range s.records {
		if keep(r) {
			records = append(records, r)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Directory != records[j].Directory {
			return records[i].Directory < records[j].Directory
		}
		return records[i].Name < records[j].Name
	})

	return records
}
