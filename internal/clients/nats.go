package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"

	"rag-system/vectorinit/internal/config"
	"rag-system/vectorinit/internal/orchestrator"
)

const natsProbeName = "nats"

// bootstrapStream holds bootstrap result events so consumers that start
// after the run can still read the outcome.
var bootstrapStream = nats.StreamConfig{
	Name:      "DB_BOOTSTRAP",
	Subjects:  []string{"bootstrap.>"},
	Retention: nats.LimitsPolicy,
	MaxAge:    7 * 24 * time.Hour,
}

// jsContext is the subset of nats.JetStreamContext used here. Defining an
// interface allows test doubles to be injected without a live NATS server.
type jsContext interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSClient publishes bootstrap results to JetStream.
type NATSClient struct {
	url     string
	subject string
	cb      *gobreaker.CircuitBreaker
	newJS   func(url string) (jsContext, func(), error)
}

// NewNATSClient constructs a NATSClient. Connections are opened lazily inside
// PublishResult and Probe.
func NewNATSClient(cfg config.NATSConfig, cb *gobreaker.CircuitBreaker) *NATSClient {
	return &NATSClient{
		url:     cfg.URL,
		subject: cfg.Subject,
		cb:      cb,
		newJS:   realNewJS,
	}
}

// PublishResult makes sure the DB_BOOTSTRAP stream exists, then publishes the
// event as JSON and waits for the JetStream ack.
func (c *NATSClient) PublishResult(ctx context.Context, event orchestrator.BootstrapEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding bootstrap event: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		js, cleanup, err := c.newJS(c.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		if err := provisionStream(js, bootstrapStream); err != nil {
			return nil, err
		}
		if _, err := js.Publish(c.subject, data, nats.Context(ctx)); err != nil {
			return nil, fmt.Errorf("publishing to %s: %w", c.subject, err)
		}
		return nil, nil
	})
	return breakerError(err)
}

// Probe verifies NATS connectivity. A missing stream is healthy: it only
// means no result has been published yet.
func (c *NATSClient) Probe(ctx context.Context) orchestrator.ProbeResult {
	start := time.Now()

	_, err := c.cb.Execute(func() (any, error) {
		js, cleanup, err := c.newJS(c.url)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
		defer cleanup()

		_, infoErr := js.StreamInfo(bootstrapStream.Name, nats.Context(ctx))
		if infoErr != nil && !errors.Is(infoErr, nats.ErrStreamNotFound) {
			return nil, fmt.Errorf("stream info: %w", infoErr)
		}
		return nil, nil
	})

	latency := time.Since(start).Milliseconds()
	if err != nil {
		return failedProbe(natsProbeName, latency, err)
	}
	return orchestrator.ProbeResult{Name: natsProbeName, OK: true, LatencyMs: latency}
}

// provisionStream creates the stream if it does not exist, or updates it if it
// does. nats.ErrStreamNotFound signals "create"; any other error is returned.
func provisionStream(js jsContext, spec nats.StreamConfig) error {
	cfg := spec

	_, err := js.StreamInfo(spec.Name)
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		if _, addErr := js.AddStream(&cfg); addErr != nil && !errors.Is(addErr, nats.ErrStreamNameAlreadyInUse) {
			return fmt.Errorf("creating stream %s: %w", spec.Name, addErr)
		}
	case err != nil:
		return fmt.Errorf("querying stream %s: %w", spec.Name, err)
	default:
		if _, updErr := js.UpdateStream(&cfg); updErr != nil {
			return fmt.Errorf("updating stream %s: %w", spec.Name, updErr)
		}
	}
	return nil
}

// realNewJS opens a real NATS connection and returns a JetStreamContext plus a
// cleanup function that closes the connection.
func realNewJS(url string) (jsContext, func(), error) {
	nc, err := nats.Connect(url, nats.Name("vectorinit"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("nats connect %s: %w", url, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, func() {}, fmt.Errorf("nats jetstream context: %w", err)
	}

	return js, func() { nc.Close() }, nil
}
