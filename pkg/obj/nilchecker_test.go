package obj

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsNil(t *testing.T) {
	var f *os.File
	var w io.Writer = f
	var m map[string]int

	require.True(t, IsNil(nil))
	require.True(t, IsNil(w))
	require.True(t, IsNil(m))
	require.False(t, IsNil(os.Stdout))
	require.False(t, IsNil(3))

	require.True(t, AnyNil(os.Stdout, w))
	require.False(t, AnyNil(os.Stdout, "x"))
}
