package publishers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// snsClient is the subset of the SNS client the sender uses.
type snsClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type awsSNSSender struct {
	topicARN string
	client   snsClient
}

// newAWSSNSSender builds an SNS sender with static credentials.
func newAWSSNSSender(ctx context.Context, cfg *AWSSNSPublisherConfig) (queueSender, error) {
	if cfg == nil {
		return nil, fmt.Errorf("aws sns configuration is missing")
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.Region, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, err
	}
	return &awsSNSSender{topicARN: cfg.TopicARN, client: sns.NewFromConfig(awsCfg)}, nil
}

// Send publishes the payload to the configured SNS topic. The subject is
// left empty; subscribers filter on the message attributes.
func (s *awsSNSSender) Send(ctx context.Context, payload []byte, attrs map[string]string) (string, error) {
	msgAttrs := make(map[string]types.MessageAttributeValue, len(attrs))
	for k, v := range attrs {
		msgAttrs[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}

	resp, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Message:           aws.String(string(payload)),
		MessageAttributes: msgAttrs,
	})
	if err != nil {
		return "", fmt.Errorf("send message to sns: %w", err)
	}
	return aws.ToString(resp.MessageId), nil
}

func (s *awsSNSSender) Close() error { return nil }
