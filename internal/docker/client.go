// Package docker wraps the Docker SDK for container listing and event
// watching. Direct mode reads DNS intent from container labels; the
// watcher turns container lifecycle events into reconcile triggers.
package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// Workload is a running container with its labels.
type Workload struct {
	ID     string
	Name   string
	Labels map[string]string
}

// Client wraps the Docker SDK client.
type Client struct {
	cli    *client.Client
	logger *slog.Logger
}

// Option is a functional option for configuring the Client.
type Option func(*clientConfig)

type clientConfig struct {
	host   string
	logger *slog.Logger
}

// WithHost overrides the Docker daemon address (DOCKER_HOST wins when
// both are set, through client.FromEnv).
func WithHost(host string) Option {
	return func(c *clientConfig) {
		c.host = host
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient connects to the Docker daemon and verifies it responds.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	sdkOpts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.host != "" {
		sdkOpts = append(sdkOpts, client.WithHost(cfg.host))
	}

	cli, err := client.NewClientWithOpts(sdkOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}

	cfg.logger.Debug("docker client connected",
		slog.String("host", cli.DaemonHost()),
	)

	return &Client{cli: cli, logger: cfg.logger}, nil
}

// ListWorkloads returns the running containers with their labels.
func (c *Client) ListWorkloads(ctx context.Context) ([]Workload, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	workloads := make([]Workload, 0, len(containers))
	for _, ctr := range containers {
		workloads = append(workloads, Workload{
			ID:     ctr.ID,
			Name:   containerName(ctr.Names),
			Labels: ctr.Labels,
		})
	}
	return workloads, nil
}

// RawClient exposes the SDK client for the event watcher.
func (c *Client) RawClient() *client.Client {
	return c.cli
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.cli.Close()
}

// containerName picks the primary name, stripping the leading slash the
// Docker API prepends.
func containerName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}
