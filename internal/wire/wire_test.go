package wire

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	line := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"read_file"}}`)
	msg, err := Parse(line)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, msg.Kind)
	assert.Equal(t, "tools/call", msg.Method)
	assert.Equal(t, line, msg.Raw)
}

func TestParseResponse(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	require.NoError(t, err)
	assert.Equal(t, KindResponse, msg.Kind)
	assert.Nil(t, msg.Error)
}

func TestParseErrorResponse(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"not found"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindResponse, msg.Kind)
	require.NotNil(t, msg.Error)
	assert.Equal(t, -32601, msg.Error.Code)
}

func TestParseNotification(t *testing.T) {
	msg, err := Parse([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.Equal(t, KindNotification, msg.Kind)
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseNoShapeMatches(t *testing.T) {
	// Neither id, method, result, nor error: matches nothing.
	_, err := Parse([]byte(`{"jsonrpc":"2.0"}`))
	assert.Error(t, err)
}

func TestErrorResponsePreservesID(t *testing.T) {
	raw, err := ErrorResponse([]byte(`42`), -32000, "blocked", map[string]string{"blocked_by": "mcp-guard"})
	require.NoError(t, err)
	msg, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte(`42`), []byte(msg.ID))
	assert.Equal(t, -32000, msg.Error.Code)
}

func TestScannerTreatsCRLFAsLF(t *testing.T) {
	sc := NewScanner(strings.NewReader("{\"a\":1}\r\n{\"b\":2}\n"))
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 2)
	assert.Equal(t, `{"a":1}`, lines[0])
	assert.Equal(t, `{"b":2}`, lines[1])
}

func TestScannerRejectsOversizedLine(t *testing.T) {
	huge := strings.Repeat("a", MaxLineSize+10)
	sc := NewScanner(strings.NewReader(huge + "\n"))
	for sc.Scan() {
	}
	assert.ErrorIs(t, sc.Err(), bufio.ErrTooLong)
}
