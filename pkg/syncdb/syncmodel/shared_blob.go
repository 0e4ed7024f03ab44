package syncmodel

import "time"

// SharedBlob is the single stored copy of a content hash. RefCount is the number
// of FileRecords pointing at it.
type SharedBlob struct {
	ContentHash   string    `json:"content_hash" gorm:"primaryKey;size:128"`
	RefCount      int64     `json:"ref_count" gorm:"not null"`
	DeclaredSize  uint64    `json:"declared_size" gorm:"not null"`
	SyncedSize    uint64    `json:"synced_size" gorm:"not null"`
	SyncCompleted bool      `json:"sync_completed" gorm:"not null"`
	CreateTime    time.Time `json:"create_time" gorm:"autoCreateTime"`
}

func (SharedBlob) TableName() string {
	return "shared_blobs"
}

func (b SharedBlob) IsComplete() bool {
	return b.SyncedSize >= b.DeclaredSize
}

// Remaining is the number of bytes still expected for the blob.
func (b SharedBlob) Remaining() uint64 {
	if b.IsComplete() {
		return 0
	}

	return b.DeclaredSize - b.SyncedSize
}
