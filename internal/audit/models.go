// Package audit persists AuditEntry records in a local embedded relational
// store: a linear, numbered set of migrations tracked by a
// schema_version table is applied once at startup, writes are async and
// best-effort (a write failure is logged, never propagated to the proxy's
// hot path), and the query interface filters by server_name/tool_name/
// blocked with limit/offset pagination ordered by id descending.
package audit

import "github.com/mcpsentry/mcpsentry/internal/model"

// Entry is the storage-facing mirror of model.AuditEntry; ToolArgs and
// Result are kept as raw JSON text for SQLite storage.
type Entry struct {
	ID          int64
	TimestampMs int64
	ServerName  string
	ToolName    string
	ToolArgs    string
	Result      string
	Truncated   bool
	Blocked     bool
	BlockReason string
	DurationMs  int64
}

// FromModel converts a model.AuditEntry into the storage Entry shape.
func FromModel(e model.AuditEntry) Entry {
	return Entry{
		TimestampMs: e.Timestamp.UnixMilli(),
		ServerName:  e.ServerName,
		ToolName:    e.ToolName,
		ToolArgs:    string(e.ToolArgs),
		Result:      string(e.Result),
		Truncated:   e.Truncated,
		Blocked:     e.Blocked,
		BlockReason: e.BlockReason,
		DurationMs:  e.DurationMs,
	}
}
