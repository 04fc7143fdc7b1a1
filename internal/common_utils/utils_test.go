package commonutils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGoID(t *testing.T) {
	require.Greater(t, GoID(), int64(0))

	ids := make(chan int64)
	go func() { ids <- GoID() }()
	require.NotEqual(t, GoID(), <-ids)
}

func TestCaller(t *testing.T) {
	c := Caller(0)
	require.True(t, strings.HasPrefix(c, "utils_test.go:"), c)
	require.Contains(t, c, "TestCaller")
}
