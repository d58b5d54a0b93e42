package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"ShopPilot/pkg/model"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI the SNS call the sender makes
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender publishes notifications as JSON to one topic; subscribers filter on attributes
type SNSSender struct {
	client   SNSAPI
	topicArn string
}

func NewSNSSender(cfg sdkaws.Config, topicArn string) *SNSSender {
	return NewSNSSenderWithClient(sns.NewFromConfig(cfg), topicArn)
}

func NewSNSSenderWithClient(client SNSAPI, topicArn string) *SNSSender {
	return &SNSSender{client: client, topicArn: topicArn}
}

func (s *SNSSender) Notify(ctx context.Context, n model.Notification) error {
	if s.topicArn == "" {
		return fmt.Errorf("sns topic is not configured")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	subject := n.Subject
	// SNS subjects are limited to 100 characters
	if len(subject) > 100 {
		subject = subject[:100]
	}

	in := &sns.PublishInput{
		TopicArn: sdkaws.String(s.topicArn),
		Message:  sdkaws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"channel": {DataType: sdkaws.String("String"), StringValue: sdkaws.String(string(n.Channel))},
			"org_id":  {DataType: sdkaws.String("String"), StringValue: sdkaws.String(n.OrgID)},
		},
	}
	if subject != "" {
		in.Subject = sdkaws.String(subject)
	}

	if _, err := s.client.Publish(ctx, in); err != nil {
		return fmt.Errorf("sns publish to %s: %w", s.topicArn, err)
	}
	return nil
}
