package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestChildEcho spawns `cat`, which echoes stdin to stdout line for line,
// exercising Send/Recv framing end to end.
func TestChildEcho(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Spawn(ctx, "echo-server", "cat", nil, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Send([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))

	line, err := c.Recv()
	require.NoError(t, err)
	require.Equal(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, string(line))
}

func TestChildCloseIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Spawn(ctx, "echo-server", "cat", nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("child did not exit after Close")
	}
}

func TestChildSpawnFailure(t *testing.T) {
	ctx := context.Background()
	_, err := Spawn(ctx, "nope", "mcpsentry-definitely-not-a-real-binary", nil, nil)
	require.Error(t, err)
}
