package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsNil(t *testing.T) {
	var ptr *int
	var iface interface{}
	var m map[string]int

	require.True(t, IsNil(nil))
	require.True(t, IsNil(ptr))
	require.True(t, IsNil(iface))
	require.True(t, IsNil(m))
	require.False(t, IsNil(1))
	require.False(t, IsNil(&struct{}{}))
}

func TestLogOnPanicRepanics(t *testing.T) {
	require.PanicsWithValue(t, "boom", func() {
		defer LogOnPanic()
		panic("boom")
	})
}
