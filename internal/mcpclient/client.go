// Package mcpclient implements the scan-time MCP client: the initialize
// handshake, tools/list and resources/list, and strict request/response
// correlation over a child transport. The handshake and correlation logic
// are hand-rolled on top of internal/wire and internal/transport, but the
// JSON shapes of MCP messages themselves are borrowed from
// github.com/modelcontextprotocol/go-sdk/mcp so this package does not
// re-invent the protocol's vocabulary.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpsentry/mcpsentry/internal/errs"
	"github.com/mcpsentry/mcpsentry/internal/model"
	"github.com/mcpsentry/mcpsentry/internal/transport"
	"github.com/mcpsentry/mcpsentry/internal/wire"
)

// ProtocolVersion is the fixed MCP protocol version string sent with every
// initialize request.
const ProtocolVersion = "2024-11-05"

// DefaultTimeout is the per-call timeout used when Connect's caller does
// not override it.
const DefaultTimeout = 30 * time.Second

// ClientInfo identifies this program to the servers it scans.
var ClientInfo = mcp.Implementation{Name: "mcpsentry", Version: "0.1.0"}

// pendingWaiter is how the client's recv loop hands a response back to the
// goroutine that issued the matching request.
type pendingWaiter struct {
	resultCh chan json.RawMessage
	errCh    chan error
}

// Client drives one MCP handshake + listing session against a spawned
// child. One Client is used sequentially: only one request is in flight at
// a time, so the pending map never holds more than one entry in practice,
// but the mechanism is general.
type Client struct {
	child   *transport.Child
	timeout time.Duration

	nextID int64

	mu      sync.Mutex
	pending map[int64]*pendingWaiter

	recvErr   error
	recvDone  chan struct{}
	closeOnce sync.Once
}

// Connect spawns the server and performs the handshake: initialize, await
// response within timeout, notifications/initialized, then tools/list and
// resources/list (tolerating "method not found" as empty lists).
func Connect(ctx context.Context, spec model.ServerSpec, timeout time.Duration) (*Client, []model.ToolInfo, []model.ResourceInfo, error) {
	if spec.TransportKind != model.TransportStdio {
		return nil, nil, nil, &errs.ProtocolError{
			Server:  spec.Name,
			Message: fmt.Sprintf("unsupported transport_kind %q", spec.TransportKind),
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	child, err := transport.Spawn(ctx, spec.Name, spec.Command, spec.Args, spec.Environment)
	if err != nil {
		return nil, nil, nil, err
	}

	c := &Client{
		child:    child,
		timeout:  timeout,
		nextID:   1,
		pending:  make(map[int64]*pendingWaiter),
		recvDone: make(chan struct{}),
	}
	go c.recvLoop()

	if err := c.handshake(ctx, spec.Name); err != nil {
		_ = c.Close()
		return nil, nil, nil, err
	}

	tools, err := c.listTools(ctx, spec.Name)
	if err != nil {
		_ = c.Close()
		return nil, nil, nil, err
	}
	resources, err := c.listResources(ctx, spec.Name)
	if err != nil {
		_ = c.Close()
		return nil, nil, nil, err
	}

	return c, tools, resources, nil
}

func (c *Client) handshake(ctx context.Context, server string) error {
	params := struct {
		ProtocolVersion string             `json:"protocolVersion"`
		Capabilities    struct{}           `json:"capabilities"`
		ClientInfo      mcp.Implementation `json:"clientInfo"`
	}{ProtocolVersion, struct{}{}, ClientInfo}

	if _, err := c.call(ctx, server, "initialize", params); err != nil {
		return err
	}

	notif, err := wire.Notification("notifications/initialized", struct{}{})
	if err != nil {
		return &errs.ProtocolError{Server: server, Err: err}
	}
	if err := c.child.Send(notif); err != nil {
		return err
	}
	return nil
}

func (c *Client) listTools(ctx context.Context, server string) ([]model.ToolInfo, error) {
	raw, err := c.call(ctx, server, "tools/list", struct{}{})
	if err != nil {
		if isMethodNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var result struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &errs.ProtocolError{Server: server, Err: err}
	}
	out := make([]model.ToolInfo, 0, len(result.Tools))
	for _, t := range result.Tools {
		var schemaBytes []byte
		if t.InputSchema != nil {
			schemaBytes, _ = json.Marshal(t.InputSchema)
		}
		canonical, _ := json.Marshal(t)
		out = append(out, model.ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaBytes,
			RawBytes:    canonical,
		})
	}
	return out, nil
}

func (c *Client) listResources(ctx context.Context, server string) ([]model.ResourceInfo, error) {
	raw, err := c.call(ctx, server, "resources/list", struct{}{})
	if err != nil {
		if isMethodNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var result struct {
		Resources []mcp.Resource `json:"resources"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &errs.ProtocolError{Server: server, Err: err}
	}
	out := make([]model.ResourceInfo, 0, len(result.Resources))
	for _, r := range result.Resources {
		out = append(out, model.ResourceInfo{URI: r.URI, Name: r.Name, MIMEType: r.MIMEType})
	}
	return out, nil
}

// call sends a request and blocks for its correlated response, honoring
// ctx and the client's per-call timeout.
func (c *Client) call(ctx context.Context, server, method string, params any) (json.RawMessage, error) {
	id := c.nextID
	c.nextID++

	waiter := &pendingWaiter{resultCh: make(chan json.RawMessage, 1), errCh: make(chan error, 1)}
	c.mu.Lock()
	c.pending[id] = waiter
	c.mu.Unlock()

	raw, err := wire.Request(id, method, params)
	if err != nil {
		c.dropPending(id)
		return nil, &errs.ProtocolError{Server: server, Err: err}
	}
	if err := c.child.Send(raw); err != nil {
		c.dropPending(id)
		return nil, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-waiter.resultCh:
		return res, nil
	case err := <-waiter.errCh:
		return nil, err
	case <-timer.C:
		c.dropPending(id)
		_ = c.child.Close()
		return nil, &errs.TimeoutError{Server: server}
	case <-ctx.Done():
		c.dropPending(id)
		_ = c.child.Close()
		return nil, &errs.TimeoutError{Server: server}
	case <-c.recvDone:
		c.dropPending(id)
		if c.recvErr != nil {
			return nil, c.recvErr
		}
		return nil, &errs.TransportError{Server: server, StderrTail: c.child.StderrTail(), Err: fmt.Errorf("connection closed before response")}
	}
}

func (c *Client) dropPending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failPending resolves every currently pending call with err. It is used
// when a malformed line makes correlation by id impossible: there is no id
// to single out the affected waiter, so every call still awaiting a
// response is failed.
func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingWaiter)
	c.mu.Unlock()
	for _, waiter := range pending {
		waiter.errCh <- err
	}
}

// recvLoop reads every line from the child and resolves the matching
// pending waiter by id. Notifications from the server are accepted and
// discarded during scan.
func (c *Client) recvLoop() {
	defer close(c.recvDone)
	for {
		line, err := c.child.Recv()
		if err != nil {
			c.recvErr = err
			return
		}
		msg, err := wire.Parse(line)
		if err != nil {
			// A malformed line aborts the affected call with a
			// ProtocolError. The client is strictly sequential, so the
			// affected call is whatever is currently pending; resolve it
			// immediately rather than falling through to the per-call
			// timeout.
			c.failPending(&errs.ProtocolError{Server: c.child.Name(), Err: fmt.Errorf("malformed json-rpc line: %w", err)})
			continue
		}
		if msg.Kind != wire.KindResponse {
			continue
		}
		var id int64
		if err := json.Unmarshal(msg.ID, &id); err != nil {
			continue
		}
		c.mu.Lock()
		waiter, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if !ok {
			continue
		}
		if msg.Error != nil {
			waiter.errCh <- &errs.ProtocolError{Code: msg.Error.Code, Message: msg.Error.Message}
			continue
		}
		waiter.resultCh <- msg.Result
	}
}

func isMethodNotFound(err error) bool {
	var pe *errs.ProtocolError
	return errors.As(err, &pe) && pe.Code == -32601
}

// Close terminates the child transport.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.child.Close() })
	return err
}
