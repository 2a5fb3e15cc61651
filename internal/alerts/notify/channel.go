package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Channel delivers rendered notification content.
type Channel interface {
	Send(ctx context.Context, content string) error
}

// namedChannel labels a channel in metrics.
type namedChannel interface {
	Name() string
}

func channelName(ch Channel) string {
	if named, ok := ch.(namedChannel); ok {
		return named.Name()
	}
	return "custom"
}

// WebhookChannel posts text messages to a chat webhook.
type WebhookChannel struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookChannel constructs a webhook channel.
func NewWebhookChannel(rawURL string) (*WebhookChannel, error) {
	if rawURL == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("webhook channel: invalid url %q", rawURL)
	}
	return &WebhookChannel{
		url:    rawURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Name implements namedChannel.
func (c *WebhookChannel) Name() string { return "webhook" }

// Send posts content to the webhook.
func (c *WebhookChannel) Send(ctx context.Context, content string) error {
	if c == nil || c.url == "" {
		return errors.New("webhook channel: empty url")
	}
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: content},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook channel: status %d", resp.StatusCode)
	}
	return nil
}

// SNSPublisher is the subset of the SNS client used by SNSChannel.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSChannel publishes notifications to an SNS topic.
type SNSChannel struct {
	client   SNSPublisher
	topicArn string
	subject  string
}

// DefaultSNSSubject is the subject of published condition notifications.
const DefaultSNSSubject = "Plant condition changed"

// NewSNSChannel wraps an SNS client.
func NewSNSChannel(client SNSPublisher, topicArn string) (*SNSChannel, error) {
	if client == nil {
		return nil, errors.New("sns channel: nil client")
	}
	if topicArn == "" {
		return nil, errors.New("sns channel: empty topic arn")
	}
	return &SNSChannel{client: client, topicArn: topicArn, subject: DefaultSNSSubject}, nil
}

// NewSNSChannelFromRegion loads the default AWS configuration for region.
func NewSNSChannelFromRegion(ctx context.Context, region, topicArn string) (*SNSChannel, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewSNSChannel(sns.NewFromConfig(cfg), topicArn)
}

// Name implements namedChannel.
func (c *SNSChannel) Name() string { return "sns" }

// Send publishes content to the topic.
func (c *SNSChannel) Send(ctx context.Context, content string) error {
	if c == nil || c.client == nil {
		return errors.New("sns channel: nil client")
	}
	_, err := c.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(c.topicArn),
		Subject:  aws.String(c.subject),
		Message:  aws.String(content),
	})
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}
