// Package sink forwards published snapshots to an external MQTT broker so
// downstream consumers can follow the fix without polling the HTTP surface.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/signalsfoundry/mission-pnt/internal/logging"
	"github.com/signalsfoundry/mission-pnt/model"
)

const (
	// DefaultTopic carries the latest fix snapshot, retained so late
	// subscribers see the current state immediately.
	DefaultTopic = "pnt/fix"

	// DefaultClientID identifies this process to the broker.
	DefaultClientID = "mission-pnt"

	defaultTimeout     = 5 * time.Second
	disconnectQuiesce  = 250
	defaultConnectWait = 10 * time.Second
)

// Client is the slice of the paho client the sink uses. The production
// implementation is mqtt.NewClient; tests substitute a fake.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// SnapshotSubscriber is the state-container surface the sink attaches to.
type SnapshotSubscriber interface {
	Subscribe(fn func(model.Snapshot)) func()
}

// FailureRecorder counts deliveries that never reached the broker.
type FailureRecorder interface {
	IncSinkFailure()
}

type noopRecorder struct{}

func (noopRecorder) IncSinkFailure() {}

// Publisher forwards snapshots to one MQTT topic.
type Publisher struct {
	client   Client
	topic    string
	qos      byte
	retained bool
	timeout  time.Duration
	log      logging.Logger
	metrics  FailureRecorder
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClient substitutes the MQTT client, primarily for tests.
func WithClient(c Client) Option {
	return func(p *Publisher) {
		if c != nil {
			p.client = c
		}
	}
}

// WithTopic overrides the publication topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithQoS sets the MQTT quality of service for fix publishes.
func WithQoS(qos byte) Option {
	return func(p *Publisher) { p.qos = qos }
}

// WithTimeout bounds broker connect and publish waits.
func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) Option {
	return func(p *Publisher) {
		if log != nil {
			p.log = log
		}
	}
}

// WithFailureRecorder attaches delivery-failure instrumentation.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(p *Publisher) {
		if r != nil {
			p.metrics = r
		}
	}
}

// New builds a Publisher for the given broker URL, e.g. "tcp://localhost:1883".
func New(brokerURL, clientID string, opts ...Option) *Publisher {
	p := &Publisher{
		topic:    DefaultTopic,
		qos:      0,
		retained: true,
		timeout:  defaultTimeout,
		log:      logging.Noop(),
		metrics:  noopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		if clientID == "" {
			clientID = DefaultClientID
		}
		clientOpts := mqtt.NewClientOptions().
			AddBroker(brokerURL).
			SetClientID(clientID).
			SetAutoReconnect(true).
			SetConnectTimeout(defaultConnectWait)
		p.client = mqtt.NewClient(clientOpts)
	}
	return p
}

// Connect establishes the broker session.
func (p *Publisher) Connect(ctx context.Context) error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("sink: broker connect timed out after %s", p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("sink: broker connect: %w", err)
	}
	p.log.Info(ctx, "sink connected to broker",
		logging.String("topic", p.topic))
	return nil
}

// Run subscribes to the state container and forwards snapshots until ctx is
// cancelled, then disconnects. The mailbox keeps only the latest snapshot;
// when the broker is slower than the publisher, stale intermediates are
// displaced rather than queued.
func (p *Publisher) Run(ctx context.Context, source SnapshotSubscriber) {
	snaps := make(chan model.Snapshot, 1)
	unsubscribe := source.Subscribe(func(snap model.Snapshot) {
		for {
			select {
			case snaps <- snap:
				return
			default:
			}
			select {
			case <-snaps:
			default:
			}
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			p.client.Disconnect(disconnectQuiesce)
			p.log.Info(context.Background(), "sink disconnected")
			return
		case snap := <-snaps:
			p.publish(ctx, snap)
		}
	}
}

// publish delivers the snapshot's fix. Consumers of pnt/fix want position,
// not the full dashboard payload.
func (p *Publisher) publish(ctx context.Context, snap model.Snapshot) {
	payload, err := json.Marshal(snap.Fix)
	if err != nil {
		p.metrics.IncSinkFailure()
		p.log.Warn(ctx, "fix marshal failed",
			logging.String("error", err.Error()))
		return
	}

	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	if !token.WaitTimeout(p.timeout) {
		p.metrics.IncSinkFailure()
		p.log.Warn(ctx, "broker publish timed out",
			logging.String("topic", p.topic),
			logging.Duration("timeout", p.timeout))
		return
	}
	if err := token.Error(); err != nil {
		p.metrics.IncSinkFailure()
		p.log.Warn(ctx, "broker publish failed",
			logging.String("topic", p.topic),
			logging.String("error", err.Error()))
	}
}
