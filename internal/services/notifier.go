// Package services holds the relay's business logic: the finalization gate,
// read-path queries and host notification fan-out.
package services

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"payables-relay/internal/metrics"
	"payables-relay/internal/models"
)

// FinalizedEvent is the payload published when an entity finalizes.
type FinalizedEvent struct {
	Chain    string      `json:"chain"`
	Kind     models.Kind `json:"kind"`
	EntityID string      `json:"entityId"`
	Entity   interface{} `json:"entity"`
}

// Notifier delivers finalization events to interested hosts.
type Notifier interface {
	PublishFinalized(event FinalizedEvent) error
}

// NATSNotifier publishes finalization events on the NATS bus under
// {subjectBase}.{kind}.finalized.
type NATSNotifier struct {
	nc          *nats.Conn
	subjectBase string
	log         *logrus.Logger
}

// NewNATSNotifier creates a NATSNotifier over an established connection.
func NewNATSNotifier(nc *nats.Conn, subjectBase string, log *logrus.Logger) *NATSNotifier {
	return &NATSNotifier{nc: nc, subjectBase: subjectBase, log: log}
}

func (n *NATSNotifier) PublishFinalized(event FinalizedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal finalized event: %w", err)
	}
	subject := fmt.Sprintf("%s.%s.finalized", n.subjectBase, event.Kind)
	if err := n.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	metrics.NotificationsPublishedTotal.WithLabelValues(string(event.Kind)).Inc()
	n.log.WithFields(logrus.Fields{
		"subject": subject,
		"chain":   event.Chain,
		"id":      event.EntityID,
	}).Debug("Published finalization event")
	return nil
}

// NoopNotifier drops events; used when the bus is disabled.
type NoopNotifier struct{}

func (NoopNotifier) PublishFinalized(FinalizedEvent) error { return nil }

// FanoutNotifier delivers each event to every wrapped notifier. A failing
// sink does not block the others; the first error is returned.
type FanoutNotifier struct {
	sinks []Notifier
}

// NewFanoutNotifier creates a FanoutNotifier.
func NewFanoutNotifier(sinks ...Notifier) *FanoutNotifier {
	return &FanoutNotifier{sinks: sinks}
}

func (f *FanoutNotifier) PublishFinalized(event FinalizedEvent) error {
	var firstErr error
	for _, s := range f.sinks {
		if err := s.PublishFinalized(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
