package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSSink publishes events as JSON on <subject>.<type>.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink connects to url.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("qarun"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	if subject == "" {
		subject = "qarun.events"
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

// Subject returns the subject evt is published on.
func (s *NATSSink) Subject(evt Event) string {
	return s.subject + "." + evt.Type
}

func (s *NATSSink) Publish(_ context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.nc.Publish(s.Subject(evt), data)
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}
	return nil
}
