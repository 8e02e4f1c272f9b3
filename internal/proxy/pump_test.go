package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mcpsentry/mcpsentry/internal/audit"
	"github.com/mcpsentry/mcpsentry/internal/model"
	"github.com/mcpsentry/mcpsentry/internal/rules"
)

// fakeChild is an in-memory childLink standing in for a spawned process:
// Send appends to a recorded list the test can inspect, Recv replays a
// queued list of server-side messages.
type fakeChild struct {
	mu   sync.Mutex
	sent [][]byte
	recv chan []byte
}

func newFakeChild() *fakeChild {
	return &fakeChild{recv: make(chan []byte, 16)}
}

func (f *fakeChild) Send(raw []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), raw...))
	return nil
}

func (f *fakeChild) Recv() ([]byte, error) {
	raw, ok := <-f.recv
	if !ok {
		return nil, io.EOF
	}
	return raw, nil
}

func (f *fakeChild) Close() error {
	return nil
}

func (f *fakeChild) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func newTestPump(t *testing.T, child *fakeChild, engine *rules.Engine) (*Pump, *audit.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := audit.NewStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewPump("test-server", child, engine, store, logger), store
}

func TestPump_BlockRuleSynthesizesErrorAndAudits(t *testing.T) {
	child := newFakeChild()
	engine := rules.NewEngine()
	engine.SetRules([]model.Rule{
		{ID: "r1", Kind: model.RuleBlock, Pattern: "delete_*", Scope: "*", Priority: 0, Enabled: true, Reason: "dangerous delete"},
	})
	p, store := newTestPump(t, child, engine)

	clientIn, clientInW := io.Pipe()
	clientOut, clientOutW := io.Pipe()

	go func() { _ = p.Run(clientIn, clientOutW) }()

	req := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"delete_index","arguments":{}}}` + "\n"
	go func() { _, _ = io.WriteString(clientInW, req) }()

	buf := make([]byte, 4096)
	n, err := clientOut.Read(buf)
	require.NoError(t, err)

	var resp struct {
		ID    int `json:"id"`
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf[:n], &resp))
	require.Equal(t, 1, resp.ID)
	require.Equal(t, -32000, resp.Error.Code)
	require.Equal(t, "dangerous delete", resp.Error.Message)
	require.Empty(t, child.Sent())

	store.Flush()
	entries, err := store.Query(audit.QueryOpts{ServerName: "test-server"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Blocked)
	require.Equal(t, "dangerous delete", entries[0].BlockReason)

	_ = clientInW.Close()
}

func TestPump_AllowedCallForwardsAndAuditsResponse(t *testing.T) {
	child := newFakeChild()
	engine := rules.NewEngine() // no rules: everything allowed
	p, store := newTestPump(t, child, engine)

	clientIn, clientInW := io.Pipe()
	clientOut, clientOutW := io.Pipe()

	go func() { _ = p.Run(clientIn, clientOutW) }()

	req := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"read_file","arguments":{"path":"a.txt"}}}` + "\n"
	go func() { _, _ = io.WriteString(clientInW, req) }()

	require.Eventually(t, func() bool { return len(child.Sent()) == 1 }, time.Second, time.Millisecond)
	require.JSONEq(t, req[:len(req)-1], string(child.Sent()[0]))

	child.recv <- []byte(`{"jsonrpc":"2.0","id":7,"result":{"content":[{"type":"text","text":"hi"}]}}`)

	buf := make([]byte, 4096)
	n, err := clientOut.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), `"id":7`)

	store.Flush()
	entries, err := store.Query(audit.QueryOpts{ServerName: "test-server"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.False(t, entries[0].Blocked)
	require.Equal(t, "read_file", entries[0].ToolName)
	require.JSONEq(t, `{"path":"a.txt"}`, string(entries[0].ToolArgs))

	_ = clientInW.Close()
	close(child.recv)
}

func TestPump_NonToolCallMessageForwardedVerbatim(t *testing.T) {
	child := newFakeChild()
	engine := rules.NewEngine()
	p, _ := newTestPump(t, child, engine)

	clientIn, clientInW := io.Pipe()
	_, clientOutW := io.Pipe()

	go func() { _ = p.Run(clientIn, clientOutW) }()

	notif := `{"jsonrpc":"2.0","method":"notifications/progress","params":{"value":1}}` + "\n"
	_, _ = io.WriteString(clientInW, notif)

	require.Eventually(t, func() bool { return len(child.Sent()) == 1 }, time.Second, time.Millisecond)
	require.JSONEq(t, notif[:len(notif)-1], string(child.Sent()[0]))

	_ = clientInW.Close()
	close(child.recv)
}

func TestPump_RateLimitDeniesThirdCall(t *testing.T) {
	child := newFakeChild()
	engine := rules.NewEngine()
	engine.SetRules([]model.Rule{
		{ID: "r1", Kind: model.RuleRateLimit, Pattern: "send_email", Scope: "*", Enabled: true, Reason: "burst guard", MaxCalls: 2, WindowSeconds: 60},
	})
	p, store := newTestPump(t, child, engine)

	clientIn, clientInW := io.Pipe()
	clientOut, clientOutW := io.Pipe()

	go func() { _ = p.Run(clientIn, clientOutW) }()

	go func() {
		for i := 1; i <= 3; i++ {
			req := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"send_email","arguments":{}}}`+"\n", i)
			_, _ = io.WriteString(clientInW, req)
		}
	}()

	// Only the first two reach the child.
	require.Eventually(t, func() bool { return len(child.Sent()) == 2 }, time.Second, time.Millisecond)

	// The third is answered upstream with a synthesized rate-limit error.
	buf := make([]byte, 4096)
	n, err := clientOut.Read(buf)
	require.NoError(t, err)
	var resp struct {
		ID    int `json:"id"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf[:n], &resp))
	require.Equal(t, 3, resp.ID)
	require.Contains(t, resp.Error.Message, "rate limited")

	store.Flush()
	yes := true
	blocked, err := store.Query(audit.QueryOpts{Blocked: &yes})
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	require.Equal(t, "send_email", blocked[0].ToolName)

	require.Eventually(t, func() bool { return len(child.Sent()) == 2 }, 100*time.Millisecond, time.Millisecond)

	_ = clientInW.Close()
	close(child.recv)
}

func TestPump_ToolCallWithUnparseableParamsIsRejectedNotForwarded(t *testing.T) {
	child := newFakeChild()
	engine := rules.NewEngine()
	p, _ := newTestPump(t, child, engine)

	clientIn, clientInW := io.Pipe()
	clientOut, clientOutW := io.Pipe()

	go func() { _ = p.Run(clientIn, clientOutW) }()

	// No params field at all: the body cannot be rule-checked.
	req := `{"jsonrpc":"2.0","id":9,"method":"tools/call"}` + "\n"
	go func() { _, _ = io.WriteString(clientInW, req) }()

	buf := make([]byte, 4096)
	n, err := clientOut.Read(buf)
	require.NoError(t, err)

	var resp struct {
		ID    int `json:"id"`
		Error struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(buf[:n], &resp))
	require.Equal(t, 9, resp.ID)
	require.Equal(t, -32602, resp.Error.Code)
	require.Empty(t, child.Sent())

	_ = clientInW.Close()
	close(child.recv)
}
