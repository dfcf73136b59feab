package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes JSON events to NATS core subjects.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

// NewNATSPublisher wraps an existing connection. The caller keeps ownership of nc.
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = "brdforge"
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

// Connect dials url and returns a publisher that closes the connection on Close.
func Connect(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("brdforge"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	p := NewNATSPublisher(nc, prefix)
	p.owned = true
	return p, nil
}

// Subject returns the subject an event for session and kind is published to.
func (p *NATSPublisher) Subject(sessionID string, kind Kind) string {
	return p.prefix + "." + token(sessionID) + "." + string(kind)
}

// Publish marshals ev and publishes it.
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.nc.Publish(p.Subject(ev.SessionID, ev.Kind), data); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	return nil
}

// Close drains the connection if the publisher opened it.
func (p *NATSPublisher) Close() error {
	if p.owned {
		return p.nc.Drain()
	}
	return nil
}

// token makes s safe for use as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

var _ Publisher = (*NATSPublisher)(nil)
