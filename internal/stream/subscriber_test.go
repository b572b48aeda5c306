package stream

import (
	"bytes"
	"errors"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/yourusername/event-cardinality/internal/config"
	"github.com/yourusername/event-cardinality/internal/ingest"
	"github.com/yourusername/event-cardinality/pkg/sketch"
)

func TestNewSubscriberRequiresURL(t *testing.T) {
	if _, err := NewSubscriber(config.NATSConfig{Subject: "events"}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestHandleFeedsPipeline(t *testing.T) {
	reg, err := sketch.NewRegistry(sketch.DefaultRegistryConfig())
	if err != nil {
		t.Fatal(err)
	}
	p, err := ingest.NewPipeline(reg, ingest.Options{Bindings: []ingest.Binding{
		{Counter: sketch.DailyUsers, Field: "actor.login"},
	}})
	if err != nil {
		t.Fatal(err)
	}

	s := newSubscriber("events.github", p)
	for _, body := range []string{
		`{"actor":{"login":"alice"}}`,
		`{"actor":{"login":"bob"}}`,
		`not json`,
		`{"actor":{"login":"alice"}}`,
	} {
		s.handle(&nats.Msg{Subject: "events.github", Data: []byte(body)})
	}

	received, skipped := s.Stats()
	if received != 4 || skipped != 1 {
		t.Errorf("expected 4 received / 1 skipped, got %d / %d", received, skipped)
	}
	if got, _ := reg.Estimate(sketch.DailyUsers); got != 2 {
		t.Errorf("expected 2 users, got %v", got)
	}
}

func TestCloseLogsUnsubscribeError(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	newSubscriber("events.github", nil).Close()
	if buf.Len() != 0 {
		t.Errorf("expected no output closing an unstarted subscriber, got %q", buf.String())
	}

	s := newSubscriber("events.github", nil)
	s.sub = &nats.Subscription{}
	s.Close()
	if !strings.Contains(buf.String(), nats.ErrConnectionClosed.Error()) {
		t.Errorf("expected unsubscribe error to be logged, got %q", buf.String())
	}
}
