package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// queueSender abstracts provider-specific queue senders.
type queueSender interface {
	Send(ctx context.Context, payload []byte, attrs map[string]string) (string, error)
	Close() error
}

// queuePublisher dispatches events to a cloud queue provider.
type queuePublisher struct {
	id       string
	provider string
	sender   queueSender
	log      Logger
}

// newQueuePublisher creates a queue publisher for the configured provider.
func newQueuePublisher(ctx context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("publisher %q missing queue configuration", cfg.ID)
	}

	var (
		sender queueSender
		err    error
	)
	switch cfg.Queue.Provider {
	case QueueProviderAWSSQS:
		sender, err = newAWSSQSSender(ctx, cfg.Queue.AWS)
	case QueueProviderAWSSNS:
		sender, err = newAWSSNSSender(ctx, cfg.Queue.SNS)
	case QueueProviderGCP:
		sender, err = newGCPPubSubSender(ctx, cfg.Queue.GCP)
	default:
		err = fmt.Errorf("queue provider %q is not supported", cfg.Queue.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("publisher %q: %w", cfg.ID, err)
	}

	return &queuePublisher{id: cfg.ID, provider: cfg.Queue.Provider, sender: sender, log: ensureLogger(log)}, nil
}

func (p *queuePublisher) ID() string   { return p.id }
func (p *queuePublisher) Type() string { return TypeQueue }
func (p *queuePublisher) Close() error { return p.sender.Close() }

// Publish encodes the event and forwards it with routing attributes.
func (p *queuePublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msgID, err := p.sender.Send(ctx, payload, eventAttributes(evt))
	if err != nil {
		p.log.ErrorObj("queue publisher send failed", "publisher_queue_error", map[string]any{
			"publisher_id": p.id,
			"provider":     p.provider,
			"link":         evt.Link,
			"error":        err.Error(),
		})
		return fmt.Errorf("queue provider %s send failed: %w", p.provider, err)
	}
	p.log.DebugObj("queue publisher delivered event", "publisher_queue_delivery", map[string]any{
		"publisher_id": p.id,
		"provider":     p.provider,
		"message_id":   msgID,
	})
	return nil
}

func eventAttributes(evt Event) map[string]string {
	return map[string]string{
		"source_id": evt.SourceID,
		"degraded":  strconv.FormatBool(evt.Degraded),
	}
}
