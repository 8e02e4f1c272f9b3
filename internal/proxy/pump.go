// Package proxy implements the interception proxy pump: a bidirectional
// forwarder between an upstream MCP client and a spawned child server,
// with rule-engine enforcement and audit logging on the client-to-server
// request path. One goroutine per direction; the request path either
// observes and forwards a message or injects a synthesized error response
// in its place.
package proxy

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpsentry/mcpsentry/internal/audit"
	"github.com/mcpsentry/mcpsentry/internal/model"
	"github.com/mcpsentry/mcpsentry/internal/obs"
	"github.com/mcpsentry/mcpsentry/internal/rules"
	"github.com/mcpsentry/mcpsentry/internal/wire"
)

// MaxAuditResultBytes is the cap on a response body kept in an audit
// entry's Result field; anything longer is truncated and flagged.
const MaxAuditResultBytes = 64 * 1024

// childLink is the subset of *transport.Child the pump needs; declared
// here so tests can substitute a fake without spawning a real process.
type childLink interface {
	Send([]byte) error
	Recv() ([]byte, error)
	Close() error
}

// pendingCall is what the request path hands the response path once a
// tools/call request has been allowed and forwarded.
type pendingCall struct {
	tool  string
	args  json.RawMessage
	start time.Time
}

// Pump connects one upstream MCP client to one spawned child server,
// enforcing the rule engine against tools/call requests and auditing every
// call.
type Pump struct {
	serverName string
	child      childLink
	engine     *rules.Engine
	store      *audit.Store
	logger     *slog.Logger
	metrics    *obs.ProxyMetrics

	writeMu sync.Mutex // guards writes to the upstream client

	pendingMu sync.Mutex
	pending   map[string]pendingCall
}

// NewPump returns a Pump wired to engine and store for one named server.
func NewPump(serverName string, child childLink, engine *rules.Engine, store *audit.Store, logger *slog.Logger) *Pump {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pump{
		serverName: serverName,
		child:      child,
		engine:     engine,
		store:      store,
		logger:     logger,
		pending:    make(map[string]pendingCall),
	}
}

// WithMetrics attaches Prometheus counters to the pump; nil is valid and
// disables metrics recording (the zero value for *obs.ProxyMetrics already
// tolerates nil receivers, this just makes the call explicit at the pump's
// construction site).
func (p *Pump) WithMetrics(m *obs.ProxyMetrics) *Pump {
	p.metrics = m
	return p
}

// Run pumps both directions until either side reaches EOF, then closes the
// child and waits for both goroutines to finish. upstreamIn/upstreamOut are
// the proxy process's stdin/stdout (or, in tests, a pipe standing in for
// them).
func (p *Pump) Run(upstreamIn io.Reader, upstreamOut io.Writer) error {
	errCh := make(chan error, 2)

	go func() {
		errCh <- p.pumpClientToServer(upstreamIn, upstreamOut)
	}()
	go func() {
		errCh <- p.pumpServerToClient(upstreamOut)
	}()

	firstErr := <-errCh
	_ = p.child.Close()
	<-errCh
	if firstErr == io.EOF {
		return nil
	}
	return firstErr
}

// pumpClientToServer reads framed messages from the upstream client. A
// tools/call request is evaluated against the rule engine; a Deny
// synthesizes an error response instead of forwarding, an Allow forwards
// and registers the call for the response path. Every other message is
// forwarded byte-identical, in order.
func (p *Pump) pumpClientToServer(in io.Reader, out io.Writer) error {
	sc := wire.NewScanner(in)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		raw := append([]byte(nil), line...)

		msg, err := wire.Parse(raw)
		if err != nil {
			p.logger.Warn("dropping malformed client message", "server", p.serverName, "error", err)
			continue
		}

		if msg.Kind == wire.KindRequest && msg.Method == "tools/call" {
			p.handleToolCall(msg, raw, out)
			continue
		}

		if err := p.child.Send(raw); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

// handleToolCall extracts params.name/arguments, consults the rule engine,
// and either synthesizes a denial or forwards the call and records it in
// the pending table.
func (p *Pump) handleToolCall(msg *wire.Message, raw []byte, out io.Writer) {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		// A tools/call body that cannot be parsed cannot be rule-checked,
		// and tools/call never passes through without a rule decision.
		// Reject it upstream instead of forwarding.
		p.logger.Warn("rejecting tools/call with unparseable params", "server", p.serverName, "error", err)
		resp, rerr := wire.ErrorResponse(msg.ID, -32602, "invalid tools/call params", nil)
		if rerr != nil {
			p.logger.Error("synthesizing invalid-params response", "error", rerr)
			return
		}
		p.writeToClient(out, resp)
		p.metrics.ObserveDecision(p.serverName, "", "rejected")
		return
	}

	decision := p.engine.Evaluate(p.serverName, params.Name)
	if !decision.Allowed {
		p.denyCall(msg, params.Name, params.Arguments, decision.Reason, out)
		return
	}

	if err := p.child.Send(raw); err != nil {
		p.logger.Error("forwarding tools/call", "error", err)
		return
	}
	p.metrics.ObserveDecision(p.serverName, params.Name, "allowed")

	p.pendingMu.Lock()
	p.pending[idKey(msg.ID)] = pendingCall{tool: params.Name, args: params.Arguments, start: time.Now()}
	p.pendingMu.Unlock()
}

func (p *Pump) denyCall(msg *wire.Message, tool string, args json.RawMessage, reason string, out io.Writer) {
	resp, err := wire.ErrorResponse(msg.ID, -32000, reason, map[string]string{"blocked_by": "mcp-guard"})
	if err != nil {
		p.logger.Error("synthesizing block response", "error", err)
		return
	}

	p.store.Log(model.AuditEntry{
		Timestamp:   time.Now().UTC(),
		ServerName:  p.serverName,
		ToolName:    tool,
		ToolArgs:    args,
		Blocked:     true,
		BlockReason: reason,
		DurationMs:  0,
	})

	p.writeToClient(out, resp)
	p.metrics.ObserveDecision(p.serverName, tool, "blocked")
}

// pumpServerToClient reads framed messages from the child and forwards
// them verbatim in all cases; a Response whose id matches a pending
// tools/call additionally produces an audit entry.
func (p *Pump) pumpServerToClient(out io.Writer) error {
	for {
		raw, err := p.child.Recv()
		if err != nil {
			return err
		}
		if len(raw) == 0 {
			continue
		}

		msg, parseErr := wire.Parse(raw)
		if parseErr == nil && msg.Kind == wire.KindResponse {
			p.auditResponse(msg)
		}

		p.writeToClient(out, raw)
	}
}

func (p *Pump) auditResponse(msg *wire.Message) {
	key := idKey(msg.ID)
	p.pendingMu.Lock()
	call, ok := p.pending[key]
	if ok {
		delete(p.pending, key)
	}
	p.pendingMu.Unlock()
	if !ok {
		return
	}

	result, truncated := capResult(msg.Result)
	p.store.Log(model.AuditEntry{
		Timestamp:  time.Now().UTC(),
		ServerName: p.serverName,
		ToolName:   call.tool,
		ToolArgs:   call.args,
		Result:     result,
		Truncated:  truncated,
		Blocked:    false,
		DurationMs: time.Since(call.start).Milliseconds(),
	})
}

func (p *Pump) writeToClient(out io.Writer, raw []byte) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := out.Write(raw); err != nil {
		p.logger.Warn("writing to upstream client", "server", p.serverName, "error", err)
		return
	}
	if _, err := out.Write([]byte("\n")); err != nil {
		p.logger.Warn("writing to upstream client", "server", p.serverName, "error", err)
	}
}

func capResult(result json.RawMessage) (capped []byte, truncated bool) {
	if len(result) <= MaxAuditResultBytes {
		return append([]byte(nil), result...), false
	}
	return append([]byte(nil), result[:MaxAuditResultBytes]...), true
}

// idKey turns a JSON-RPC id (integer or string, verbatim) into a stable
// map key without assuming its concrete type.
func idKey(id json.RawMessage) string {
	return string(id)
}
