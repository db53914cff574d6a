// Package pubsub wraps the Pub/Sub v2 client for publishing order events.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/petalpost/storefront-backend/pkg/config"
	"github.com/petalpost/storefront-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub orders topic is required")
)

type Client struct {
	client    *pubsub.Client
	projectID string
	topics    []string
}

// NewClient dials Pub/Sub and checks that every configured topic exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.OrdersTopic) == "" {
		return nil, errTopicRequired
	}

	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.ApplicationCredentials); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	psClient, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: projectID,
		topics:    []string{cfg.OrdersTopic},
	}
	if err := c.Ping(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", c.topics), "pubsub.ready")
	}
	return c, nil
}

// Ping verifies each configured topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, topic := range c.topics {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: TopicName(c.projectID, topic)})
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %q does not exist", topic)
		}
		if err != nil {
			return fmt.Errorf("checking topic %q: %w", topic, err)
		}
	}
	return nil
}

// Publisher returns a handle for topic, which may be an id or a full
// resource name.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	name := TopicName(c.projectID, topic)
	if name == "" {
		return nil
	}
	return c.client.Publisher(name)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// TopicName expands a topic id into projects/<p>/topics/<id>.
func TopicName(projectID, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topic)
}

// Retryable reports whether a publish failure is worth another attempt.
// Permission and argument errors never heal on their own.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition:
		return false
	}
	return true
}
