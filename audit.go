package goGate

import (
	"context"
	"io"

	"github.com/MrEthical07/goGate/internal/audit"
)

// Audit event types.
const (
	AuditTokenRefreshed     = "token.refreshed"
	AuditRefreshRejected    = "token.refresh_rejected"
	AuditPrincipalRevoked   = "token.principal_revoked"
	AuditSessionCreated     = "session.created"
	AuditSessionEvicted     = "session.evicted"
	AuditSessionInvalidated = "session.invalidated"
	AuditRateLimited        = "ratelimit.limited"
	AuditRateLimitFailOpen  = "ratelimit.failed_open"
)

type (
	// AuditEvent is one audit record.
	AuditEvent = audit.Event
	// AuditSink receives audit events from the plane's dispatcher goroutine.
	AuditSink = audit.Sink
	// AuditSinkFunc adapts a function to AuditSink.
	AuditSinkFunc = audit.SinkFunc
	// LogAuditSink writes events through a slog.Logger.
	LogAuditSink = audit.LogSink
)

// NewChannelAuditSink returns a sink that forwards events to a buffered channel.
func NewChannelAuditSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONAuditSink returns a sink writing newline-delimited JSON to w.
func NewJSONAuditSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// AuditDropped counts events dropped because the audit buffer was full.
func (p *Plane) AuditDropped() uint64 {
	return p.audit.Dropped()
}

func (p *Plane) emit(ctx context.Context, ev AuditEvent) {
	if p.audit == nil {
		return
	}
	ev.Time = p.now()
	p.audit.Emit(ctx, ev)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
