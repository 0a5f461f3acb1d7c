// Package events feeds job-removal notifications from the indexing
// collaborator into the reclamation scheduler over NATS.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/logfields"
)

// JobRemoved is the wire payload published by the indexing engine when a
// job is permanently removed (branch pruned, repository deleted).
type JobRemoved struct {
	// Segments is the preferred form; FullName is accepted as a fallback
	// from older publishers.
	Segments []string `json:"segments,omitempty"`
	FullName string   `json:"full_name,omitempty"`
}

// Consumer subscribes to job-removal events and invokes the handler once
// per message. The handler must not block: the scheduler's trigger path
// only enqueues work.
type Consumer struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	handler func(identity.Identity)
}

// NewConsumer connects to NATS. The consumer is inactive until Start.
func NewConsumer(url, subject string, handler func(identity.Identity)) (*Consumer, error) {
	if url == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	slog.Info("NATS consumer connected", slog.String("url", url), slog.String("subject", subject))
	return &Consumer{conn: conn, subject: subject, handler: handler}, nil
}

// Start subscribes to the removal subject.
func (c *Consumer) Start() error {
	sub, err := c.conn.Subscribe(c.subject, c.onMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.sub = sub
	return nil
}

func (c *Consumer) onMessage(msg *nats.Msg) {
	var evt JobRemoved
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		slog.Warn("Dropping malformed job-removal event", logfields.Error(err))
		return
	}

	id, err := evt.Identity()
	if err != nil {
		slog.Warn("Dropping job-removal event without a usable identity", logfields.Error(err))
		return
	}

	slog.Debug("Job removal received", logfields.Identity(id.FullName()))
	c.handler(id)
}

// Identity extracts the job identity from the payload.
func (e JobRemoved) Identity() (identity.Identity, error) {
	if len(e.Segments) > 0 {
		return identity.New(e.Segments...)
	}
	if e.FullName != "" {
		return identity.Parse(e.FullName)
	}
	return identity.Identity{}, fmt.Errorf("event carries neither segments nor full_name")
}

// Close unsubscribes and drops the connection.
func (c *Consumer) Close() {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
