package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"textbook-chat-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName    = "CHAT_EVENTS"
	SubjectPrefix = "events.chat"
)

// ErrNotConnected fails a publish fast while the broker is unreachable.
var ErrNotConnected = errors.New("nats: not connected")

// Publisher handles sending events to the NATS bus.
type Publisher struct {
	mu sync.RWMutex
	nc *nats.Conn
	js jetstream.JetStream
}

// NewPublisher connects and makes sure the chat events stream exists. An
// unreachable server is not an error: the connection keeps retrying in the
// background and the stream is ensured once it comes up. Use Connected to
// report the initial state.
func NewPublisher(url string) (*Publisher, error) {
	p := &Publisher{}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.ConnectHandler(func(*nats.Conn) { p.ensureStream() }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	p.mu.Lock()
	p.nc, p.js = nc, js
	p.mu.Unlock()

	if nc.IsConnected() {
		p.ensureStream()
	}
	return p, nil
}

func (p *Publisher) ensureStream() {
	p.mu.RLock()
	js := p.js
	p.mu.RUnlock()
	if js == nil {
		// connected before NewPublisher assigned js; NewPublisher ensures it next
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		log.Printf("Warn: Failed to ensure stream '%s': %v", StreamName, err)
	}
}

// Connected reports whether the broker is currently reachable.
func (p *Publisher) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nc != nil && p.nc.IsConnected()
}

// Subject maps an event type onto the stream, e.g. events.chat.CHAT_MESSAGE_SENT.
func Subject(eventType string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, eventType)
}

// Publish sends an event to NATS.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(map[string]interface{}{
		"type":        event.EventType(),
		"data":        event.Payload(),
		"occurred_at": event.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	if !p.Connected() {
		return ErrNotConnected
	}

	subject := Subject(event.EventType())
	p.mu.RLock()
	js := p.js
	p.mu.RUnlock()
	if _, err := js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}

	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.nc != nil {
		p.nc.Close()
	}
}
