package stream

import (
	"errors"
	"log"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"github.com/yourusername/event-cardinality/internal/config"
	"github.com/yourusername/event-cardinality/internal/ingest"
)

var ErrNotConfigured = errors.New("nats url not configured")

// LineProcessor handles one raw event line. *ingest.Pipeline implements it.
type LineProcessor interface {
	ProcessLine(line []byte) ingest.LineOutcome
}

// Subscriber feeds events published on a NATS subject into a pipeline.
// Each message body is one JSON event.
type Subscriber struct {
	nc        *nats.Conn
	sub       *nats.Subscription
	subject   string
	processor LineProcessor

	received atomic.Int64
	skipped  atomic.Int64
}

// NewSubscriber connects to the configured NATS server.
func NewSubscriber(cfg config.NATSConfig, processor LineProcessor) (*Subscriber, error) {
	if cfg.URL == "" {
		return nil, ErrNotConfigured
	}

	nc, err := nats.Connect(cfg.URL, nats.Name("event-cardinality"))
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)

	s := newSubscriber(cfg.Subject, processor)
	s.nc = nc
	return s, nil
}

func newSubscriber(subject string, processor LineProcessor) *Subscriber {
	return &Subscriber{subject: subject, processor: processor}
}

// Start subscribes to the configured subject. Messages are delivered one at
// a time on the subscription's goroutine.
func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(s.subject, s.handle)
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for events...", s.subject)
	return nil
}

func (s *Subscriber) handle(msg *nats.Msg) {
	out := s.processor.ProcessLine(msg.Data)
	s.received.Add(1)
	if out.Skipped {
		s.skipped.Add(1)
		log.Printf("Skipped event on %s (%s): %v", msg.Subject, out.Reason, out.Err)
	}
	ingest.Observe("nats", out)
}

// Stats returns the number of messages received and skipped so far.
func (s *Subscriber) Stats() (received, skipped int64) {
	return s.received.Load(), s.skipped.Load()
}

// Close unsubscribes and drains the NATS connection.
// Failures are logged.
func (s *Subscriber) Close() {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			log.Printf("Error unsubscribing from '%s': %v", s.subject, err)
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.Printf("Error draining NATS connection: %v", err)
			return
		}
		log.Println("NATS connection drained and closed.")
	}
}
