package syncmodel

import (
	"path"
	"time"
)

// FileRecord maps one (owner, directory, name) path to the content it holds.
// Records are never mutated once created.
type FileRecord struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	OwnerID          string    `json:"owner_id" gorm:"size:64;not null;uniqueIndex:idx_file_record_path,priority:1"`
	Directory        string    `json:"directory" gorm:"size:384;not null;uniqueIndex:idx_file_record_path,priority:2"`
	Name             string    `json:"name" gorm:"size:255;not null;uniqueIndex:idx_file_record_path,priority:3"`
	ContentHash      string    `json:"content_hash" gorm:"size:128;not null;index"`
	Meta             string    `json:"meta" gorm:"type:text"`
	FileCreateTime   time.Time `json:"file_create_time"`
	RecordCreateTime time.Time `json:"record_create_time" gorm:"autoCreateTime"`
}

func (FileRecord) TableName() string {
	return "file_records"
}

func (r FileRecord) FullPath() string {
	return path.Join(r.Directory, r.Name)
}
