package sshutil

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Run executes a command on the remote host and returns its combined
// stdout. A non-zero exit status is an error carrying the stderr text.
func (c *Client) Run(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connLocked(ctx)
	if err != nil {
		return "", err
	}

	session, err := conn.NewSession()
	if err != nil {
		c.dropLocked()
		return "", fmt.Errorf("opening ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	c.logger.Debug("running remote command", slog.String("command", command))

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Close()
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = strings.TrimSpace(stdout.String())
			}
			return "", fmt.Errorf("remote command %q: %w: %s", command, err, detail)
		}
		return stdout.String(), nil
	}
}
