package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/okian/simbot/internal/domain/model"
)

// NATSUpstream publishes events as JSON to a NATS subject.
// Events of a run go to "<subject>.<run id>" when the event carries one.
type NATSUpstream struct {
	nc      *nats.Conn
	subject string
	owned   bool
}

// NewNATSUpstream publishes through an existing connection.
func NewNATSUpstream(nc *nats.Conn, subject string) *NATSUpstream {
	return &NATSUpstream{nc: nc, subject: subject}
}

// ConnectNATS dials url and returns an upstream owning the connection.
func ConnectNATS(url, subject string, opts ...nats.Option) (*NATSUpstream, error) {
	opts = append([]nats.Option{nats.Name("simbot")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return &NATSUpstream{nc: nc, subject: subject, owned: true}, nil
}

// Subject returns the subject an event is published on.
func (u *NATSUpstream) Subject(ev model.ProgressEvent) string {
	if ev.RunID == "" {
		return u.subject
	}
	return u.subject + "." + ev.RunID
}

// Publish sends ev. NATS buffers the write; errors only report a closed or failed connection.
func (u *NATSUpstream) Publish(_ context.Context, ev model.ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if err := u.nc.Publish(u.Subject(ev), data); err != nil {
		return fmt.Errorf("publish progress event: %w", err)
	}
	return nil
}

// Close drains the connection if this upstream opened it.
func (u *NATSUpstream) Close() error {
	if !u.owned {
		return nil
	}
	return u.nc.Drain()
}
