package sink

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/signalsfoundry/mission-pnt/internal/state"
	"github.com/signalsfoundry/mission-pnt/model"
)

type fakeToken struct {
	err      error
	timedOut bool
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timedOut }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishedMsg struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connectErr   error
	connectHangs bool
	publishErr   error
	published    []publishedMsg
	disconnected bool
}

func (c *fakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &fakeToken{err: c.connectErr, timedOut: c.connectHangs}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, _ := payload.([]byte)
	c.published = append(c.published, publishedMsg{
		topic:    topic,
		qos:      qos,
		retained: retained,
		payload:  body,
	})
	return &fakeToken{err: c.publishErr}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) publishCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.published)
}

func (c *fakeClient) lastPublished() (publishedMsg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.published) == 0 {
		return publishedMsg{}, false
	}
	return c.published[len(c.published)-1], true
}

func (c *fakeClient) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

type countingRecorder struct {
	mu    sync.Mutex
	count int
}

func (r *countingRecorder) IncSinkFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
}

func (r *countingRecorder) failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func sampleSnap(status string) model.Snapshot {
	return model.Snapshot{
		Status: status,
		Fix:    model.Fix{LatDeg: 12.97, LonDeg: 80.04, Mode: model.FixMode3DLock},
	}
}

func TestNewDefaults(t *testing.T) {
	fc := &fakeClient{}
	p := New("tcp://localhost:1883", "", WithClient(fc))

	if p.topic != DefaultTopic {
		t.Errorf("topic = %q, want %q", p.topic, DefaultTopic)
	}
	if p.qos != 0 {
		t.Errorf("qos = %d, want 0", p.qos)
	}
	if !p.retained {
		t.Error("retained = false, want true")
	}

	custom := New("tcp://localhost:1883", "x", WithClient(fc), WithTopic("pnt/alt"), WithQoS(1))
	if custom.topic != "pnt/alt" || custom.qos != 1 {
		t.Errorf("options not applied: topic=%q qos=%d", custom.topic, custom.qos)
	}
}

func TestConnectReportsTokenError(t *testing.T) {
	fc := &fakeClient{connectErr: errors.New("connection refused")}
	p := New("tcp://localhost:1883", "", WithClient(fc))

	err := p.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "broker connect") {
		t.Errorf("Connect err = %v, want broker connect error", err)
	}
}

func TestConnectReportsTimeout(t *testing.T) {
	fc := &fakeClient{connectHangs: true}
	p := New("tcp://localhost:1883", "", WithClient(fc), WithTimeout(10*time.Millisecond))

	err := p.Connect(context.Background())
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Connect err = %v, want timeout error", err)
	}
}

func TestRunForwardsSnapshotsAndDisconnects(t *testing.T) {
	fc := &fakeClient{}
	p := New("tcp://localhost:1883", "", WithClient(fc))
	tracking := state.New()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, tracking)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for fc.publishCount() == 0 {
		tracking.Publish(sampleSnap("TRACKING (5 SATS)"))
		select {
		case <-deadline:
			t.Fatal("no publish reached the broker before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	msg, ok := fc.lastPublished()
	if !ok {
		t.Fatal("no published message")
	}
	if msg.topic != DefaultTopic {
		t.Errorf("topic = %q, want %q", msg.topic, DefaultTopic)
	}
	if msg.qos != 0 || !msg.retained {
		t.Errorf("qos=%d retained=%v, want qos 0 retained", msg.qos, msg.retained)
	}
	var fix model.Fix
	if err := json.Unmarshal(msg.payload, &fix); err != nil {
		t.Fatalf("payload not a fix: %v", err)
	}
	if fix.Mode != model.FixMode3DLock {
		t.Errorf("payload Mode = %q, want %q", fix.Mode, model.FixMode3DLock)
	}
	if fix.LatDeg != 12.97 {
		t.Errorf("payload LatDeg = %v, want 12.97", fix.LatDeg)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if !fc.isDisconnected() {
		t.Error("client not disconnected on shutdown")
	}
}

func TestRunCountsDeliveryFailuresAndContinues(t *testing.T) {
	fc := &fakeClient{publishErr: errors.New("broker gone")}
	rec := &countingRecorder{}
	p := New("tcp://localhost:1883", "", WithClient(fc), WithFailureRecorder(rec))
	tracking := state.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx, tracking)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for rec.failures() == 0 {
		tracking.Publish(sampleSnap("TRACKING (4 SATS)"))
		select {
		case <-deadline:
			t.Fatal("no delivery failure recorded before deadline")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Broker recovers; the loop must still be alive and delivering.
	fc.mu.Lock()
	fc.publishErr = nil
	fc.mu.Unlock()

	before := fc.publishCount()
	deadline = time.After(2 * time.Second)
	for fc.publishCount() == before {
		tracking.Publish(sampleSnap("TRACKING (5 SATS)"))
		select {
		case <-deadline:
			t.Fatal("publishing stopped after a delivery failure")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
