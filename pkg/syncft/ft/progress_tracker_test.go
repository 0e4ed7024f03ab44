package ft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProgressTracker(t *testing.T) {
	tracker := NewProgressTracker()
	now := time.Now()

	tracker.Start(TransferProgress{SessionID: "b", ContentHash: "h2", StartedAt: now})
	tracker.Start(TransferProgress{SessionID: "a", ContentHash: "h1", StartedAt: now.Add(-time.Minute)})

	tracker.Update("a", 42)
	tracker.Update("missing", 1)

	list := tracker.List()
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].SessionID)
	require.EqualValues(t, 42, list[0].SyncedSize)

	tracker.Remove("a")
	require.Len(t, tracker.List(), 1)
}
