package stor

import (
	"github.com/driveline/syncd/pkg/syncdb/config"
	"gorm.io/gorm"
)

// WithTxRetry runs fn in a transaction, retrying on failure. Sentinel errors
// describe the data, not the database, so they are returned without a retry.
func WithTxRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error

	retryCount := config.GetTxRetry()

	for i := 0; i < retryCount; i++ {
		err = db.Transaction(fn)
		if err == nil || isSentinel(err) {
			break
		}
	}

	return err
}
