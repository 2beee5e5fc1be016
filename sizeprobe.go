package ftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// countingReader wraps an io.Reader and records the number of bytes read
// from it, independent of how many of those bytes the data socket
// actually managed to deliver before closing.
type countingReader struct {
	r     io.Reader
	total int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.total += int64(n)
	return n, err
}

// sizeProbeResult is the outcome of an independent SIZE query run against
// a fresh control connection after a SOCKS5-tunneled upload.
type sizeProbeResult struct {
	serverSize int64
	ok         bool // serverSize == the byte count the client handed the tunnel
}

// sizeProbe opens a second, independent login to the same server and asks
// it for the size of remotePath, to disambiguate a SOCKS5 proxy silently
// truncating an upload from the proxy closing the connection the instant
// the server is actually done (spec section 4.6). The probe requires the
// server to accept a concurrent login for the same user; servers that
// reject it surface that as a probe error, which the caller treats as
// "could not confirm" rather than "confirmed bad".
func (c *Client) sizeProbe(ctx context.Context, remotePath string, translength int64) (*sizeProbeResult, error) {
	sibling, err := c.dialSibling(ctx)
	if err != nil {
		return nil, fmt.Errorf("size probe: %w", err)
	}
	defer sibling.Quit()

	size, err := sibling.Size(remotePath)
	if err != nil {
		return nil, fmt.Errorf("size probe: SIZE query failed: %w", err)
	}

	return &sizeProbeResult{serverSize: size, ok: size == translength}, nil
}

// dialSibling opens a second control connection to the same host, with
// the same TLS and SOCKS5 configuration, and logs in with the credentials
// the original connection used. It does not share any state with c beyond
// those settings.
func (c *Client) dialSibling(ctx context.Context) (*Client, error) {
	if c.username == "" {
		return nil, errors.New("no credentials recorded for this connection")
	}

	sibling := &Client{
		host:           c.host,
		port:           c.port,
		timeout:        c.timeout,
		tlsMode:        c.tlsMode,
		tlsConfig:      c.tlsConfig,
		dialer:         c.dialer,
		socksProxyAddr: c.socksProxyAddr,
		encoding:       c.encoding,
		enc:            c.enc,
		logger:         c.logger,
		parsers:        c.parsers,
	}
	sibling.queue = newTaskQueue(nil, sibling.timeout)

	if err := sibling.connect(ctx); err != nil {
		return nil, err
	}
	sibling.queue.controlConn = sibling.conn

	if err := sibling.Login(c.username, c.password); err != nil {
		sibling.conn.Close()
		return nil, err
	}

	return sibling, nil
}

// isConnReset reports whether err is (or wraps) ECONNRESET, the specific
// failure the SOCKS5 size-probe exists to reclassify as success.
func isConnReset(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return strings.Contains(opErr.Err.Error(), "connection reset")
	}
	return strings.Contains(err.Error(), "connection reset")
}
