package sshutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/sftp"
)

// ReadFile reads a remote file over SFTP. A missing file returns an
// error satisfying os.IsNotExist.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs, err := c.sftpLocked(ctx)
	if err != nil {
		return nil, err
	}
	defer fs.Close()

	f, err := fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		c.dropLocked()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	c.logger.Debug("remote file read",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return data, nil
}

// WriteFileAtomic writes a remote file by writing a temporary sibling
// and renaming it over the target, so readers never observe a partial
// file.
func (c *Client) WriteFileAtomic(ctx context.Context, path string, data []byte, perm os.FileMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs, err := c.sftpLocked(ctx)
	if err != nil {
		return err
	}
	defer fs.Close()

	tmp := path + ".tmp"
	f, err := fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		c.dropLocked()
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		c.dropLocked()
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := f.Chmod(perm); err != nil {
		c.logger.Warn("cannot set remote file mode",
			slog.String("path", tmp),
			slog.String("error", err.Error()),
		)
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("closing %s: %w", tmp, err)
	}

	// PosixRename replaces the target in one operation where the server
	// supports it; plain Rename fails on existing targets with some
	// servers, so try it first.
	if err := fs.PosixRename(tmp, path); err != nil {
		_ = fs.Remove(path)
		if err := fs.Rename(tmp, path); err != nil {
			_ = fs.Remove(tmp)
			return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
		}
	}

	c.logger.Debug("remote file written",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// sftpLocked opens a fresh SFTP session on the shared connection. The
// caller closes the session; the SSH connection stays open.
func (c *Client) sftpLocked(ctx context.Context) (*sftp.Client, error) {
	conn, err := c.connLocked(ctx)
	if err != nil {
		return nil, err
	}
	fs, err := sftp.NewClient(conn)
	if err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("opening sftp session: %w", err)
	}
	return fs, nil
}
