package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(NewMapConfig(map[string]string{
		BlobDirKey: "/data/blobs",
		DBDSNKey:   "/data/syncd.db",
	}))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:8080", s.ListenAddr)
	require.Equal(t, "/data/blobs", s.BlobDir)
	require.Equal(t, DriverSqlite, s.DBDriver)
	require.Equal(t, "/data/syncd.db", s.DBDSN)
	require.Equal(t, 2, s.ShardWidth)
	require.Equal(t, 120*time.Second, s.IdleTimeout)
	require.Equal(t, 100, s.CheckpointChunks)
	require.Equal(t, 30*time.Second, s.CheckpointInterval)
	require.False(t, s.SingleFileSessions)
	require.Empty(t, s.APITokens)
}

func TestLoadSettingsOverrides(t *testing.T) {
	s, err := LoadSettings(NewMapConfig(map[string]string{
		ListenAddrKey:         ":9000",
		BlobDirKey:            "/srv/blobs",
		DBDriverKey:           "MySQL",
		ShardWidthKey:         "3",
		IdleTimeoutKey:        "5",
		CheckpointChunksKey:   "7",
		CheckpointSecondsKey:  "1",
		SingleFileSessionsKey: "true",
		APITokensKey:          "abc:alice, def:bob",
	}))
	require.NoError(t, err)

	require.Equal(t, ":9000", s.ListenAddr)
	require.Equal(t, DriverMySQL, s.DBDriver)
	require.Empty(t, s.DBDSN)
	require.Equal(t, 3, s.ShardWidth)
	require.Equal(t, 5*time.Second, s.IdleTimeout)
	require.Equal(t, 7, s.CheckpointChunks)
	require.Equal(t, time.Second, s.CheckpointInterval)
	require.True(t, s.SingleFileSessions)
	require.Equal(t, map[string]string{"abc": "alice", "def": "bob"}, s.APITokens)
}

func TestLoadSettingsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		entries map[string]string
	}{
		{name: "unknown driver", entries: map[string]string{DBDriverKey: "oracle"}},
		{name: "shard width too small", entries: map[string]string{ShardWidthKey: "0"}},
		{name: "shard width too large", entries: map[string]string{ShardWidthKey: "9"}},
		{name: "zero idle timeout", entries: map[string]string{IdleTimeoutKey: "0"}},
		{name: "negative idle timeout", entries: map[string]string{IdleTimeoutKey: "-5"}},
		{name: "malformed token", entries: map[string]string{APITokensKey: "abc"}},
		{name: "token without owner", entries: map[string]string{APITokensKey: "abc:"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := LoadSettings(NewMapConfig(test.entries))
			require.Error(t, err)
		})
	}
}

func TestNewConfigForPathSelectsImplementation(t *testing.T) {
	require.IsType(t, &ViperConfig{}, NewConfigForPath("/etc/syncd.yaml"))
	require.IsType(t, &ViperConfig{}, NewConfigForPath("/etc/syncd.TOML"))
	require.IsType(t, &DotenvConfig{}, NewConfigForPath("/etc/syncd.env"))
	require.IsType(t, &DotenvConfig{}, NewConfigForPath(""))
}

func TestViperConfigReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("syncd_shard_width: 4\nsyncd_listen_addr: \":7000\"\n"), 0600))
	t.Setenv("SYNCD_IDLE_TIMEOUT", "9")

	c := NewViperConfig(path)
	require.NoError(t, c.Load())

	require.Equal(t, 4, c.GetIntKey(ShardWidthKey))
	require.Equal(t, ":7000", c.GetKey(ListenAddrKey))
	require.Equal(t, 9, c.GetIntKeyWithDefault(IdleTimeoutKey, 1))
	require.Equal(t, "fallback", c.GetKeyWithDefault("SYNCD_NOT_SET", "fallback"))
}

func TestDotenvConfigLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "syncd.env")
	require.NoError(t, os.WriteFile(path, []byte("SYNCD_TEST_DOTENV_KEY=hello\nSYNCD_TEST_DOTENV_BOOL=yes\n"), 0600))
	t.Cleanup(func() {
		_ = os.Unsetenv("SYNCD_TEST_DOTENV_KEY")
		_ = os.Unsetenv("SYNCD_TEST_DOTENV_BOOL")
	})

	c := NewDotenvConfig(path)
	require.NoError(t, c.Load())
	require.Equal(t, "hello", c.GetKey("SYNCD_TEST_DOTENV_KEY"))

	// "yes" is not a strconv bool so the default is used.
	require.True(t, c.GetBoolKeyWithDefault("SYNCD_TEST_DOTENV_BOOL", true))
	require.False(t, c.GetBoolKeyWithDefault("SYNCD_TEST_DOTENV_BOOL", false))
}
