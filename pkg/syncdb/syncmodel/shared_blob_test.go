package syncmodel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSharedBlobCompletion(t *testing.T) {
	tests := []struct {
		name      string
		blob      SharedBlob
		complete  bool
		remaining uint64
	}{
		{name: "empty blob", blob: SharedBlob{}, complete: true, remaining: 0},
		{name: "partial", blob: SharedBlob{DeclaredSize: 1000, SyncedSize: 400}, complete: false, remaining: 600},
		{name: "exact", blob: SharedBlob{DeclaredSize: 1000, SyncedSize: 1000}, complete: true, remaining: 0},
		{name: "over", blob: SharedBlob{DeclaredSize: 10, SyncedSize: 12}, complete: true, remaining: 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.complete, test.blob.IsComplete())
			require.Equal(t, test.remaining, test.blob.Remaining())
		})
	}
}

func TestFileRecordFullPath(t *testing.T) {
	require.Equal(t, "/f", FileRecord{Directory: "/", Name: "f"}.FullPath())
	require.Equal(t, "/a/b/f", FileRecord{Directory: "/a/b", Name: "f"}.FullPath())
}
