// Package notify pushes operator alerts over ntfy for conditions that
// need human attention: durable-storage failures and contest finalization.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config holds ntfy notification settings.
type Config struct {
	Enabled  bool
	Server   string // ntfy server URL
	Topic    string
	Priority string // min, low, default, high, urgent
	Tags     string // comma-separated emoji tags
	Token    string // optional access token for private topics
}

// Notifier is the interface for sending feed alerts.
type Notifier interface {
	StorageFailure(ctx context.Context, contestID string, err error) error
	ContestFinalized(ctx context.Context, contestID string, sessions int) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger
}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// StorageFailure alerts that a durable event append failed. Failures are
// sent at high priority regardless of the configured default.
func (c *Client) StorageFailure(ctx context.Context, contestID string, failure error) error {
	title := fmt.Sprintf("Event log append failed: %s", contestID)
	message := fmt.Sprintf("A feed event could not be durably recorded.\n\nError: %v", failure)
	tags := c.config.Tags + ",x"

	return c.send(ctx, title, message, tags, "high")
}

// ContestFinalized alerts that the contest finished and the feed closed
// its subscriber sessions.
func (c *Client) ContestFinalized(ctx context.Context, contestID string, sessions int) error {
	title := fmt.Sprintf("Contest finalized: %s", contestID)
	message := fmt.Sprintf("Event feed closed.\nSubscribers at finalization: %d", sessions)
	tags := c.config.Tags + ",checkered_flag"

	return c.send(ctx, title, message, tags, c.config.Priority)
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

func (n *NoopNotifier) StorageFailure(_ context.Context, _ string, _ error) error {
	return nil
}

func (n *NoopNotifier) ContestFinalized(_ context.Context, _ string, _ int) error {
	return nil
}
