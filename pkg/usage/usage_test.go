package usage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterCountsPerUser(t *testing.T) {
	l := NewMemoryLimiter(50)

	limits, err := l.Limits(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 0, limits.Daily.Used)
	assert.Equal(t, 50, limits.Daily.Limit)

	l.Record("alice")
	l.Record("alice")
	l.Record("bob")

	limits, err = l.Limits(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, limits.Daily.Used)

	limits, err = l.Limits(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, limits.Daily.Used)
}
