package moderation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordValidator(t *testing.T) {
	v := NewKeywordValidator([]string{"Forbidden", "  ", "secret"})
	ctx := context.Background()

	res, err := v.ValidateOutput(ctx, "a perfectly fine answer", "u1", "chat_1")
	require.NoError(t, err)
	assert.True(t, res.IsValid)

	res, err = v.ValidateOutput(ctx, "this contains a SECRET word", "u1", "chat_1")
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "secret", res.BlockedText)
	assert.Equal(t, []string{"blocklist"}, res.Violations)
}
