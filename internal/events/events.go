// Package events publishes account lifecycle events to a message broker.
// Publishing is best-effort: a broker failure is logged and never
// surfaced to the flow that triggered it.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/siddhi-app/apiserver/internal/logging"
)

// Type names an account lifecycle event.
type Type string

const (
	UserRegistered  Type = "user.registered"
	PasswordChanged Type = "user.password_changed"
	UserLoggedOut   Type = "user.logged_out"
)

// AccountEvent is the payload published for each lifecycle transition.
type AccountEvent struct {
	Type   Type      `json:"type"`
	UserID int       `json:"user_id"`
	Email  string    `json:"email"`
	At     time.Time `json:"at"`
}

// Backend defines the broker-agnostic publish operation.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Publisher serializes account events onto a named channel. A nil
// Publisher is valid and drops every event.
type Publisher struct {
	backend Backend
	channel string
	log     logging.Logger
}

// NewPublisher constructs a Publisher for the provided backend.
func NewPublisher(backend Backend, channel string, log logging.Logger) *Publisher {
	return &Publisher{backend: backend, channel: channel, log: log}
}

// Publish sends the event to the broker, logging (not returning) failures.
func (p *Publisher) Publish(ctx context.Context, event AccountEvent) {
	if p == nil || p.backend == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error(ctx, "marshal account event", "type", event.Type, "err", err)
		return
	}
	attrs := map[string]string{"type": string(event.Type)}
	if _, err := p.backend.Publish(ctx, p.channel, data, attrs); err != nil {
		p.log.Error(ctx, "publish account event", "type", event.Type, "err", err)
	}
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	if p == nil || p.backend == nil {
		return nil
	}
	return p.backend.Close()
}
