package syncdb

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/driveline/syncd/pkg/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SqliteInMemoryDSN opens a private in-memory database. Because sqlite handles
// are limited to a single connection, each OpenDB call gets its own database.
const SqliteInMemoryDSN = ":memory:"

// MakeDSN builds a mysql DSN from the DB_* keys of c.
func MakeDSN(c config.Configer) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.GetKey(config.DBUsernameKey),
		c.GetKey(config.DBPasswordKey),
		c.GetKey(config.DBHostKey),
		c.GetKey(config.DBPortKey),
		c.GetKey(config.DBDatabaseKey))
}

// OpenDB opens a gorm handle for driver ("sqlite" or "mysql"). gorm's own
// logger is silenced unless debug is set.
func OpenDB(driver, dsn string, debug bool) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	if debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch driver {
	case config.DriverSqlite:
		if dsn != SqliteInMemoryDSN {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("unable to create database directory for %s: %w", dsn, err)
			}
		}
		dialector = sqlite.Open(dsn)
	case config.DriverMySQL:
		if dsn == "" {
			dsn = MakeDSN(config.GetConfig())
		}
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	if driver == config.DriverSqlite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}

		// sqlite allows a single writer; one connection also keeps an in-memory
		// database alive for the life of the handle.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	return db, nil
}

const maxDBRetries = 5

var dbRetryDelay = 3 * time.Second

// MustConnectToDB will attempt to connect to the database maxDBRetries times. If it isn't successful
// after that number of retries then it will call log.Fatalf(), which will cause the server to exit.
// Between retry attempts it will sleep for 3 seconds. Migrations are run once connected.
func MustConnectToDB(settings *config.Settings) *gorm.DB {
	db, err := connectWithRetry(settings, maxDBRetries)
	if err != nil {
		log.Fatalf("Failed to open db (%s): %s", settings.DBDriver, err)
	}

	if err := RunMigrations(db); err != nil {
		log.Fatalf("Failed to migrate db: %s", err)
	}

	return db
}

func connectWithRetry(settings *config.Settings, attempts int) (*gorm.DB, error) {
	var (
		err error
		db  *gorm.DB
	)

	retryCount := 1
	for {
		db, err = OpenDB(settings.DBDriver, settings.DBDSN, settings.DBDebug)
		switch {
		case err == nil:
			return db, nil
		case retryCount >= attempts:
			return nil, err
		default:
			log.Warnf("Failed to open db, attempt %d/%d: %s", retryCount, attempts, err)
			retryCount++
			time.Sleep(dbRetryDelay)
		}
	}
}
