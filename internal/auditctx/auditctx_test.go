package auditctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithActor(context.Background(), Actor{UserID: "user-1", Email: "a@example.com", Method: "api_key"})
	actor, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "user-1", actor.UserID)
	require.Equal(t, "api_key", actor.Method)
}
