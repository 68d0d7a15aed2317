// Package transcriptlog persists the per-call transcript: one row per spoken
// turn, appended as the session produces them. The store is the only
// persistence the call loop touches; everything else stays in memory.
package transcriptlog

import (
	"context"
	"time"
)

// Role identifies the speaker of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Entry is one transcript row.
type Entry struct {
	SessionID string
	TenantID  string
	AgentID   string
	Role      Role
	Text      string

	// ToolName is set on RoleTool entries only.
	ToolName string

	At time.Time
}

// Store appends transcript entries. Implementations are safe for concurrent
// use; Append must not block the call loop longer than a single round trip.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Close()
}

// Noop discards every entry. Used when transcript logging is disabled.
type Noop struct{}

func (Noop) Append(context.Context, Entry) error { return nil }
func (Noop) Close()                              {}

var _ Store = Noop{}
