package syncdb

import (
	"github.com/driveline/syncd/pkg/syncdb/syncmodel"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(&syncmodel.SharedBlob{}, &syncmodel.FileRecord{})
}

// MustOpenInMemory returns a migrated private in-memory sqlite database. It panics
// on failure and is meant for tests and --in-memory runs.
func MustOpenInMemory() *gorm.DB {
	db, err := OpenDB("sqlite", SqliteInMemoryDSN, false)
	if err != nil {
		panic(err)
	}

	if err := RunMigrations(db); err != nil {
		panic(err)
	}

	return db
}
