package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdapter_AlwaysReadyAndSucceeds(t *testing.T) {
	a := NewMockAdapter(1, 0)
	assert.True(t, a.Ready())

	out, err := a.Generate(context.Background(), "write a function", 50, 0.2)
	require.NoError(t, err)
	assert.NotEmpty(t, out.Text)
	assert.True(t, out.TokensKnown)
}

func TestMockAdapter_RespectsCancellation(t *testing.T) {
	a := NewMockAdapter(1000, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := a.Generate(ctx, "p", 10, 0.1)
	require.Error(t, err)
}
