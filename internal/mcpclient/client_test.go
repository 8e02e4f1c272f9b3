package mcpclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpsentry/mcpsentry/internal/errs"
	"github.com/mcpsentry/mcpsentry/internal/model"
)

// fakeServerScript is a minimal shell "MCP server": it replies to
// initialize, tools/list, and resources/list with fixed bodies and ignores
// everything else (including the initialized notification, which carries
// no id and expects no reply).
const fakeServerScript = `
while IFS= read -r line; do
  case "$line" in
    *'"method":"initialize"'*)
      echo '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05","serverInfo":{"name":"fake","version":"1.0"}}}'
      ;;
    *'"method":"tools/list"'*)
      echo '{"jsonrpc":"2.0","id":2,"result":{"tools":[{"name":"read_file","description":"Reads a file"}]}}'
      ;;
    *'"method":"resources/list"'*)
      echo '{"jsonrpc":"2.0","id":3,"result":{"resources":[]}}'
      ;;
  esac
done
`

func TestConnectHandshakeAndListing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	spec := model.ServerSpec{
		Name:          "fake",
		Command:       "sh",
		Args:          []string{"-c", fakeServerScript},
		TransportKind: model.TransportStdio,
	}

	c, tools, resources, err := Connect(ctx, spec, time.Second)
	require.NoError(t, err)
	defer c.Close()

	require.Len(t, tools, 1)
	require.Equal(t, "read_file", tools[0].Name)
	require.Empty(t, resources)
}

func TestConnectRejectsHTTPSSE(t *testing.T) {
	ctx := context.Background()
	spec := model.ServerSpec{Name: "http-srv", TransportKind: model.TransportHTTPSSE}
	_, _, _, err := Connect(ctx, spec, time.Second)
	require.Error(t, err)
}

// A malformed line during the handshake must fail fast with a
// ProtocolError, not stall until the per-call timeout expires.
func TestConnectMalformedLineFailsFastWithProtocolError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	spec := model.ServerSpec{
		Name:          "garbled",
		Command:       "sh",
		Args:          []string{"-c", `while IFS= read -r line; do echo 'not-json{{{'; done`},
		TransportKind: model.TransportStdio,
	}

	start := time.Now()
	_, _, _, err := Connect(ctx, spec, 10*time.Second)
	elapsed := time.Since(start)

	require.Error(t, err)
	var protoErr *errs.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	require.Less(t, elapsed, 2*time.Second, "malformed line must resolve immediately, not wait for the call timeout")
}

func TestConnectTimesOutWithoutResponse(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	spec := model.ServerSpec{
		Name:          "silent",
		Command:       "cat", // never replies to anything
		TransportKind: model.TransportStdio,
	}
	_, _, _, err := Connect(ctx, spec, 200*time.Millisecond)
	require.Error(t, err)
}
