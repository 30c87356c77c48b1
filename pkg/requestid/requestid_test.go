package requestid

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"
)

func TestEnsureCreatesULID(t *testing.T) {
	ctx, id := Ensure(context.Background())

	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)

	stored, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, id, stored)
}

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "abc")
	_, id := Ensure(ctx)
	require.Equal(t, "abc", id)
}

func TestFromContextEmpty(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	_, ok = FromContext(ContextWithRequestID(context.Background(), ""))
	require.False(t, ok)
}
