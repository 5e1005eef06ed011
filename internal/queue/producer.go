// Package queue provides best-effort pub/sub for control commands and
// live-detection notifications over core NATS. Durable queues (JetStream)
// are explicitly out of scope: detections are persisted through the
// repository layer, not replayed from a broker, so nothing here needs
// at-least-once delivery guarantees.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	// ControlSubject carries start/stop/manual-override commands the
	// control-plane API issues to the orchestrator.
	ControlSubject = "sentinel.control"
	// DetectionsSubjectBase is the prefix for live-detection notifications,
	// one subject per camera: "sentinel.detections.<cameraId>".
	DetectionsSubjectBase = "sentinel.detections"
)

// Producer publishes control commands and detection notifications.
// Delivery is fire-and-forget; a missed message costs nothing durable
// since the repository remains the system of record.
type Producer struct {
	nc *nats.Conn
}

// NewProducer connects to NATS with indefinite reconnect, matching the
// engine's tolerance for a broker that starts after the engine does.
func NewProducer(natsURL string) (*Producer, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Producer{nc: nc}, nil
}

// PublishControl sends a raw control command.
func (p *Producer) PublishControl(data []byte) error {
	return p.nc.Publish(ControlSubject, data)
}

// PublishDetection notifies subscribers (the live-feed websocket hub) of a
// new detection on a camera. Best-effort: a publish failure is logged by
// the caller and never blocks persistence.
func (p *Producer) PublishDetection(cameraID string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal detection notification: %w", err)
	}
	subject := fmt.Sprintf("%s.%s", DetectionsSubjectBase, cameraID)
	return p.nc.Publish(subject, payload)
}

// Subscribe registers a handler for a subject, returning the
// subscription so the caller can Unsubscribe on shutdown.
func (p *Producer) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return p.nc.Subscribe(subject, handler)
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
