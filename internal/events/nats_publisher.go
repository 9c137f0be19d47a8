package events

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/csschan/unitpay-sub001/internal/clients"
	"github.com/csschan/unitpay-sub001/internal/metrics"
	"github.com/csschan/unitpay-sub001/internal/services"
)

// StreamName JetStream stream carrying payment lifecycle events.
const StreamName = "UNITPAY_EVENTS"

// SubjectPrefix all payment events publish under this prefix.
const SubjectPrefix = "unitpay.payment_intent"

// StreamSubjects subjects covered by the stream.
var StreamSubjects = []string{SubjectPrefix + ".>"}

// NATSPublisher publishes payment lifecycle events to JetStream. Implements
// services.NotificationEmitter; delivery is best-effort and failures only
// count against metrics.
type NATSPublisher struct {
	client *clients.NATSClient
}

// NewNATSPublisher wraps an established NATS client.
func NewNATSPublisher(client *clients.NATSClient) *NATSPublisher {
	return &NATSPublisher{client: client}
}

// Emit publishes the event under unitpay.payment_intent.<event>.
func (p *NATSPublisher) Emit(event string, payload services.NotificationPayload) {
	if p.client == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("❌ [NATS] Failed to marshal %s event: %v", event, err)
		metrics.NotificationsFailed.WithLabelValues(event, "nats").Inc()
		return
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, event)
	if err := p.client.Publish(subject, body); err != nil {
		log.Printf("❌ [NATS] Failed to publish %s: %v", subject, err)
		metrics.NotificationsFailed.WithLabelValues(event, "nats").Inc()
		return
	}
	metrics.NotificationsSent.WithLabelValues(event, "nats").Inc()
}
