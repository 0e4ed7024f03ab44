package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
)

const (
	DotenvPathKey         = "SYNCD_DOTENV_PATH"
	ListenAddrKey         = "SYNCD_LISTEN_ADDR"
	BlobDirKey            = "SYNCD_BLOB_DIR"
	DBDriverKey           = "SYNCD_DB_DRIVER"
	DBDSNKey              = "SYNCD_DB_DSN"
	DBDebugKey            = "SYNCD_DB_DEBUG"
	ShardWidthKey         = "SYNCD_SHARD_WIDTH"
	IdleTimeoutKey        = "SYNCD_IDLE_TIMEOUT"
	CheckpointChunksKey   = "SYNCD_CHECKPOINT_CHUNKS"
	CheckpointSecondsKey  = "SYNCD_CHECKPOINT_SECONDS"
	SingleFileSessionsKey = "SYNCD_SINGLE_FILE_SESSIONS"
	TxRetryKey            = "SYNCD_TX_RETRY"
	LogLevelKey           = "SYNCD_LOG_LEVEL"
	APITokensKey          = "SYNCD_API_TOKENS"

	// Used to build a mysql DSN when SYNCD_DB_DSN is blank.
	DBUsernameKey = "DB_USERNAME"
	DBPasswordKey = "DB_PASSWORD"
	DBHostKey     = "DB_HOST"
	DBPortKey     = "DB_PORT"
	DBDatabaseKey = "DB_DATABASE"
)

const (
	DriverSqlite = "sqlite"
	DriverMySQL  = "mysql"
)

const (
	defaultListenAddr        = "127.0.0.1:8080"
	defaultBlobDir           = "~/.syncd/blobs"
	defaultSqliteDSN         = "~/.syncd/syncd.db"
	defaultShardWidth        = 2
	defaultIdleTimeoutSecs   = 120
	defaultCheckpointChunks  = 100
	defaultCheckpointSeconds = 30
)

// Settings is the typed view of the daemon configuration.
type Settings struct {
	ListenAddr         string
	BlobDir            string
	DBDriver           string
	DBDSN              string
	DBDebug            bool
	ShardWidth         int
	IdleTimeout        time.Duration
	CheckpointChunks   int
	CheckpointInterval time.Duration
	SingleFileSessions bool
	LogLevel           string

	// APITokens maps an auth token to the owner id it resolves to.
	APITokens map[string]string
}

// LoadSettings reads every SYNCD_* key from c, applying defaults and expanding
// "~" in filesystem paths.
func LoadSettings(c Configer) (*Settings, error) {
	var err error

	s := &Settings{
		ListenAddr:         c.GetKeyWithDefault(ListenAddrKey, defaultListenAddr),
		DBDriver:           strings.ToLower(c.GetKeyWithDefault(DBDriverKey, DriverSqlite)),
		DBDSN:              c.GetKey(DBDSNKey),
		DBDebug:            c.GetBoolKeyWithDefault(DBDebugKey, false),
		ShardWidth:         c.GetIntKeyWithDefault(ShardWidthKey, defaultShardWidth),
		IdleTimeout:        time.Duration(c.GetIntKeyWithDefault(IdleTimeoutKey, defaultIdleTimeoutSecs)) * time.Second,
		CheckpointChunks:   c.GetIntKeyWithDefault(CheckpointChunksKey, defaultCheckpointChunks),
		CheckpointInterval: time.Duration(c.GetIntKeyWithDefault(CheckpointSecondsKey, defaultCheckpointSeconds)) * time.Second,
		SingleFileSessions: c.GetBoolKeyWithDefault(SingleFileSessionsKey, false),
		LogLevel:           c.GetKeyWithDefault(LogLevelKey, "info"),
	}

	if s.BlobDir, err = homedir.Expand(c.GetKeyWithDefault(BlobDirKey, defaultBlobDir)); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", BlobDirKey, err)
	}

	switch s.DBDriver {
	case DriverSqlite:
		if s.DBDSN == "" {
			s.DBDSN = defaultSqliteDSN
		}
		if s.DBDSN, err = homedir.Expand(s.DBDSN); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", DBDSNKey, err)
		}
	case DriverMySQL:
		// A blank DSN is built from the DB_* keys when the database is opened.
	default:
		return nil, fmt.Errorf("unsupported %s %q", DBDriverKey, s.DBDriver)
	}

	if s.ShardWidth < 1 || s.ShardWidth > 8 {
		return nil, fmt.Errorf("%s must be between 1 and 8, got %d", ShardWidthKey, s.ShardWidth)
	}

	if s.IdleTimeout < time.Second {
		return nil, fmt.Errorf("%s must be at least 1 second, got %s", IdleTimeoutKey, s.IdleTimeout)
	}

	if s.APITokens, err = ParseAPITokens(c.GetKey(APITokensKey)); err != nil {
		return nil, err
	}

	return s, nil
}

// ParseAPITokens parses "token:owner,token:owner". Whitespace around entries is
// ignored.
func ParseAPITokens(val string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, entry := range strings.Split(val, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		token, owner, found := strings.Cut(entry, ":")
		token = strings.TrimSpace(token)
		owner = strings.TrimSpace(owner)
		if !found || token == "" || owner == "" {
			return nil, fmt.Errorf("invalid %s entry %q, expected token:owner", APITokensKey, entry)
		}

		tokens[token] = owner
	}

	return tokens, nil
}
