package goIdentity

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/goIdentity/internal/audit"
)

type (
	// AuditEvent is one audit record.
	AuditEvent = audit.Event
	// AuditSink receives audit events on the dispatcher goroutine.
	AuditSink = audit.Sink
	// NoOpSink discards events.
	NoOpSink = audit.NoOpSink
	// ChannelSink buffers events in a channel, mostly for tests.
	ChannelSink = audit.ChannelSink
	// JSONWriterSink writes newline-delimited JSON.
	JSONWriterSink = audit.JSONWriterSink
	// SlogSink logs events through a slog.Logger.
	SlogSink = audit.SlogSink
	// MultiAuditSink fans every event out to several sinks.
	MultiAuditSink = audit.MultiSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}
