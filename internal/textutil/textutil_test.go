package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHead(t *testing.T) {
	require.Equal(t, "", Head("abc", 0))
	require.Equal(t, "ab", Head("abc", 2))
	require.Equal(t, "abc", Head("abc", 10))
	require.Equal(t, "héé", Head("hééllo", 3))
}

func TestTruncateMarkerLaw(t *testing.T) {
	const marker = "\n[trimmed]"
	for _, limit := range []int{1, 5, 99} {
		in := strings.Repeat("ü", 100)
		out := Truncate(in, limit, marker)
		require.Equal(t, Head(in, limit)+marker, out)
		require.Equal(t, limit+Len(marker), Len(out))
	}
	require.Equal(t, "short", Truncate("short", 5, marker))
	require.Equal(t, "short", Truncate("short", 0, marker))
}
