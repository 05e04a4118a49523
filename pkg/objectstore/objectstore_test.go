package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory()
	m.Put("img-1", []byte{0xff, 0xd8, 0xff})

	data, err := m.Get(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

	// Returned slice is a copy; mutating it must not affect the store.
	data[0] = 0x00
	again, err := m.Get(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Equal(t, byte(0xff), again[0])
}

func TestMemoryGetMissing(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
