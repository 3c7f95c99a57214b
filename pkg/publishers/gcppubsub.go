package publishers

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

type gcpPubSubSender struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// newGCPPubSubSender builds a Pub/Sub sender. Without a credentials file
// the client falls back to application default credentials.
func newGCPPubSubSender(ctx context.Context, cfg *GCPQueueConfig) (queueSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("gcp queue configuration is missing")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &gcpPubSubSender{client: client, topic: client.Topic(cfg.Topic)}, nil
}

// Send publishes the payload and waits for the server ack.
func (s *gcpPubSubSender) Send(ctx context.Context, payload []byte, attrs map[string]string) (string, error) {
	res := s.topic.Publish(ctx, &pubsub.Message{Data: payload, Attributes: attrs})
	msgID, err := res.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("send message to pubsub: %w", err)
	}
	return msgID, nil
}

// Close flushes pending publishes and releases the client.
func (s *gcpPubSubSender) Close() error {
	s.topic.Stop()
	return s.client.Close()
}
