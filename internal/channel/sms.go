package channel

import (
	"context"
	"errors"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/rescuemesh/notification-service/internal/domain/notification"
)

// snsAPI is the slice of the SNS client the sender needs.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSSender delivers over SNS by phone number.
type SMSSender struct {
	client   snsAPI
	senderID string
	timeout  time.Duration
}

func NewSMSSender(ctx context.Context, cfg SMSConfig) (*SMSSender, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return &SMSSender{
		client:   sns.NewFromConfig(awsCfg),
		senderID: cfg.SenderID,
		timeout:  orDefault(cfg.Timeout),
	}, nil
}

func (s *SMSSender) Name() notification.Channel { return notification.ChannelSMS }

func (s *SMSSender) Send(ctx context.Context, target notification.Target, message string, _ map[string]any) (string, error) {
	if target.Phone == "" {
		return "", failf(notification.FailTargetMissing, errors.New("recipient has no phone number"))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	in := &sns.PublishInput{
		PhoneNumber: &target.Phone,
		Message:     &message,
	}
	if s.senderID != "" {
		in.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {
				DataType:    strPtr("String"),
				StringValue: &s.senderID,
			},
		}
	}

	out, err := s.client.Publish(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return "", failf(notification.FailTimeout, err)
		}
		return "", failf(notification.FailProvider, err)
	}
	if out.MessageId == nil {
		return "", nil
	}
	return *out.MessageId, nil
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

func strPtr(s string) *string { return &s }
