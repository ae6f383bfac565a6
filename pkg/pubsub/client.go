package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/salesledger/pkg/config"
	"github.com/angelmondragon/salesledger/pkg/logger"
)

// Client wraps a Pub/Sub v2 client bound to the order events topic and,
// for consumers, the analytics subscription.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	consumer  bool
}

// Mode selects which resources NewClient verifies at startup.
type Mode int

const (
	// ModePublisher checks the order events topic.
	ModePublisher Mode = iota
	// ModeConsumer checks the analytics subscription as well.
	ModeConsumer
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errTopicRequired     = errors.New("pubsub order events topic is required")
	errNoSubscription    = errors.New("pubsub analytics subscription is required")
)

// NewClient creates a Pub/Sub client and fails fast when the configured
// topic or subscription is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, mode Mode, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.OrderEventsTopic) == "" {
		return nil, errTopicRequired
	}
	if mode == ModeConsumer && strings.TrimSpace(cfg.AnalyticsSubscription) == "" {
		return nil, errNoSubscription
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		cfg:       cfg,
		consumer:  mode == ModeConsumer,
	}
	if err := c.ensureConfigured(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", cfg.OrderEventsTopic), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) ensureConfigured(ctx context.Context) error {
	topic := topicResourceName(c.projectID, c.cfg.OrderEventsTopic)
	if _, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic}); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("topic %q does not exist", c.cfg.OrderEventsTopic)
		}
		return fmt.Errorf("checking topic %q: %w", c.cfg.OrderEventsTopic, err)
	}
	if !c.consumer {
		return nil
	}

	sub := subscriptionResourceName(c.projectID, c.cfg.AnalyticsSubscription)
	if _, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub}); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("subscription %q does not exist", c.cfg.AnalyticsSubscription)
		}
		return fmt.Errorf("checking subscription %q: %w", c.cfg.AnalyticsSubscription, err)
	}
	return nil
}

// Publisher returns an ordering-enabled publisher for a topic ID or full
// resource name. Callers own it and must Stop it.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := topicResourceName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	p := c.client.Publisher(fullName)
	p.EnableMessageOrdering = true
	return p
}

// AnalyticsSubscription returns the subscriber feeding the analytics sink.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := subscriptionResourceName(c.projectID, c.cfg.AnalyticsSubscription)
	if fullName == "" {
		return nil
	}
	return c.client.Subscriber(fullName)
}

// Ping re-checks the configured topic and subscription.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.ensureConfigured(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func subscriptionResourceName(projectID, name string) string {
	return resourceName(projectID, "subscriptions", name)
}

func topicResourceName(projectID, name string) string {
	return resourceName(projectID, "topics", name)
}

func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}
