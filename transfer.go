package ftp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/duskline/goftp/internal/ratelimit"
)

// transferSession is one open data connection plus the resolver
// reconciling its completion with the control channel's final response.
// The queue lock is held by the caller for the session's entire lifetime.
type transferSession struct {
	dataConn net.Conn
	resolver *transferResolver
}

// beginTransferLocked negotiates the data connection and sends the
// transfer command, in that order — PASV/EPSV must complete before the
// command that triggers the server's connect-back. Caller must hold
// c.queue and call c.queue.onDataDoneLocked() once the session is torn down.
func (c *Client) beginTransferLocked(ctx context.Context, cmd string, args ...string) (*transferSession, error) {
	dataConn, err := c.openDataConnLocked(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.sendCommandLocked(cmd, args...)
	if err != nil {
		dataConn.Close()
		return nil, err
	}
	if resp.Is4xx() || resp.Is5xx() {
		dataConn.Close()
		return nil, &ProtocolError{Command: cmd, Response: resp.Message, Code: resp.Code}
	}

	c.queue.onDataStartLocked()

	return &transferSession{dataConn: dataConn, resolver: newTransferResolver()}, nil
}

// readControlCompletion reads control-channel responses until the
// terminal reply to a data transfer arrives, feeding every outcome into
// resolver. It never returns an error directly: failures are reported
// through resolver so the data-side goroutine's result isn't raced.
func (c *Client) readControlCompletion(cmd string, resolver *transferResolver) {
	for {
		resp, err := readResponse(c.reader)
		if err != nil {
			resolver.onError(&ConnectionError{Op: "read transfer completion", Err: err})
			return
		}
		c.logResponse(resp)

		switch {
		case resp.Is1xx():
			continue
		case resp.Is2xx():
			resolver.onControlDone(resp)
			return
		case resp.Is3xx():
			// The control channel now expects a follow-up the transfer
			// path has no handler for; its state is ambiguous afterward.
			resolver.onUnexpectedRequest(resp)
			c.conn.Close()
			return
		default:
			resolver.onError(&ProtocolError{Command: cmd, Response: resp.Message, Code: resp.Code})
			return
		}
	}
}

// runDataCommand drives a download-shaped transfer (RETR, LIST, NLST,
// MLSD): open data connection, send command, let consume read the data
// connection, reconcile with the control channel's final response.
// consume returns the number of bytes it read, for WithMetrics reporting.
func (c *Client) runDataCommand(ctx context.Context, cmd string, args []string, kind transferKind, consume func(net.Conn) (int64, error)) error {
	return c.observeTransfer(kind, func() (int64, error) {
		c.queue.lock()
		defer c.queue.unlock()

		sess, err := c.beginTransferLocked(ctx, cmd, args...)
		if err != nil {
			return 0, err
		}
		defer c.queue.onDataDoneLocked()

		var n int64
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error {
			read, consumeErr := consume(sess.dataConn)
			n = read
			if consumeErr != nil {
				sess.dataConn.Close()
				sess.resolver.onError(&ConnectionError{Op: "data channel", Err: consumeErr})
				return nil
			}
			if cerr := sess.dataConn.Close(); cerr != nil {
				sess.resolver.onError(&ConnectionError{Op: "close data channel", Err: cerr})
				return nil
			}
			sess.resolver.onDataDone()
			return nil
		})
		g.Go(func() error {
			c.readControlCompletion(cmd, sess.resolver)
			return nil
		})
		g.Wait()

		_, err = sess.resolver.wait()
		return n, err
	})
}

// runUpload drives an upload-shaped transfer (STOR, APPE). When the
// client is tunneling through SOCKS5, an ECONNRESET seen while writing or
// closing the data connection triggers the independent SIZE probe (spec
// section 4.6 and sizeprobe.go) instead of being treated as failure
// outright.
func (c *Client) runUpload(ctx context.Context, cmd, remotePath string, r io.Reader) error {
	if err := c.Type("I"); err != nil {
		return fmt.Errorf("failed to set binary mode: %w", err)
	}

	return c.observeTransfer(transferKindUpload, func() (int64, error) {
		c.queue.lock()
		defer c.queue.unlock()

		sess, err := c.beginTransferLocked(ctx, cmd, remotePath)
		if err != nil {
			return 0, err
		}
		defer c.queue.onDataDoneLocked()

		atomic.StoreInt32(&c.transferInProgress, 1)
		defer atomic.StoreInt32(&c.transferInProgress, 0)

		useSocks := c.socksProxyAddr != ""
		counter := &countingReader{r: ratelimit.NewReader(r, c.bandwidthLimiter)}

		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error {
			_, copyErr := io.Copy(sess.dataConn, counter)
			if copyErr != nil {
				sess.dataConn.Close()
				if useSocks && isConnReset(copyErr) {
					c.finishSocksUpload(remotePath, counter.total, sess.resolver, copyErr)
					return nil
				}
				sess.resolver.onError(&ConnectionError{Op: "write data channel", Err: copyErr})
				return nil
			}

			closeErr := sess.dataConn.Close()
			if closeErr != nil {
				if useSocks && isConnReset(closeErr) {
					c.finishSocksUpload(remotePath, counter.total, sess.resolver, closeErr)
					return nil
				}
				sess.resolver.onError(&ConnectionError{Op: "close data channel", Err: closeErr})
				return nil
			}

			sess.resolver.onDataDone()
			return nil
		})
		g.Go(func() error {
			c.readControlCompletion(cmd, sess.resolver)
			return nil
		})
		g.Wait()

		_, err = sess.resolver.wait()
		return counter.total, err
	})
}

// finishSocksUpload runs the SIZE probe and reconciles its outcome with
// resolver. resetErr is whatever ECONNRESET the data channel produced;
// it is surfaced verbatim if the probe itself cannot be run, since in
// that case the reset is the only signal available.
func (c *Client) finishSocksUpload(remotePath string, translength int64, resolver *transferResolver, resetErr error) {
	probe, perr := c.sizeProbe(context.Background(), remotePath, translength)
	if perr != nil {
		resolver.onError(&ConnectionError{Op: "write data channel", Err: resetErr})
		return
	}
	if !probe.ok {
		resolver.onError(&TransferIncomplete{Sent: translength, Accepted: probe.serverSize})
		return
	}
	resolver.onDataDone()
}

// Store uploads data from an io.Reader to the remote path.
// The transfer is performed in binary mode (TYPE I).
//
// Example:
//
//	file, err := os.Open("local.txt")
//	if err != nil {
//	    return err
//	}
//	defer file.Close()
//
//	err = client.Store("remote.txt", file)
func (c *Client) Store(remotePath string, r io.Reader) error {
	return c.runUpload(context.Background(), "STOR", remotePath, r)
}

// StoreFrom uploads a local file to the remote path.
// This is a convenience wrapper around Store.
func (c *Client) StoreFrom(remotePath, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer file.Close()

	return c.Store(remotePath, file)
}

// Retrieve downloads data from the remote path to an io.Writer.
// The transfer is performed in binary mode (TYPE I).
//
// Example:
//
//	file, err := os.Create("local.txt")
//	if err != nil {
//	    return err
//	}
//	defer file.Close()
//
//	err = client.Retrieve("remote.txt", file)
func (c *Client) Retrieve(remotePath string, w io.Writer) error {
	if err := c.Type("I"); err != nil {
		return fmt.Errorf("failed to set binary mode: %w", err)
	}
	return c.runDataCommand(context.Background(), "RETR", []string{remotePath}, transferKindDownload, func(conn net.Conn) (int64, error) {
		return io.Copy(ratelimit.NewWriter(w, c.bandwidthLimiter), conn)
	})
}

// RetrieveTo downloads a remote file to a local path.
// This is a convenience wrapper around Retrieve.
func (c *Client) RetrieveTo(remotePath, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file: %w", err)
	}
	defer file.Close()

	if err := c.Retrieve(remotePath, file); err != nil {
		_ = os.Remove(localPath)
		return err
	}
	return nil
}

// Append appends data from an io.Reader to the remote path.
// If the file doesn't exist, it will be created. This is a plain FTP
// append; it has no relationship to resuming an interrupted transfer.
func (c *Client) Append(remotePath string, r io.Reader) error {
	return c.runUpload(context.Background(), "APPE", remotePath, r)
}

// RestartAt sets the restart marker for the next transfer.
// This allows resuming a transfer from a specific byte offset.
// The offset applies to the next RETR or STOR command.
// This implements RFC 3659 - The FTP REST Extension.
//
// Example:
//
//	err := client.RestartAt(1024)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = client.Retrieve("file.bin", writer) // Resumes from byte 1024
func (c *Client) RestartAt(offset int64) error {
	resp, err := c.sendCommand("REST", fmt.Sprintf("%d", offset))
	if err != nil {
		return err
	}

	if resp.Code != 350 {
		return &ProtocolError{
			Command:  "REST",
			Response: resp.Message,
			Code:     resp.Code,
		}
	}

	return nil
}

// RetrieveFrom downloads a file starting from the specified byte offset.
// This is useful for resuming interrupted downloads.
// The transfer is performed in binary mode (TYPE I).
//
// Example:
//
//	file, err := os.OpenFile("large.bin", os.O_WRONLY|os.O_APPEND, 0644)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer file.Close()
//
//	info, _ := file.Stat()
//	err = client.RetrieveFrom("large.bin", file, info.Size())
func (c *Client) RetrieveFrom(remotePath string, w io.Writer, offset int64) error {
	if err := c.Type("I"); err != nil {
		return fmt.Errorf("failed to set binary mode: %w", err)
	}

	if offset > 0 {
		if err := c.RestartAt(offset); err != nil {
			return fmt.Errorf("failed to set restart marker: %w", err)
		}
	}

	return c.runDataCommand(context.Background(), "RETR", []string{remotePath}, transferKindDownload, func(conn net.Conn) (int64, error) {
		return io.Copy(ratelimit.NewWriter(w, c.bandwidthLimiter), conn)
	})
}

// StoreAt uploads a file starting from the specified byte offset, using
// REST+STOR. This exposes a byte offset to resume an interrupted upload;
// it does not implement any retry policy of its own, and the server must
// support REST ahead of STOR (not every server does).
//
// Example:
//
//	info, _ := os.Stat("partial.bin")
//	err := client.StoreAt("remote.bin", file, info.Size())
func (c *Client) StoreAt(remotePath string, r io.Reader, offset int64) error {
	if offset > 0 {
		if err := c.RestartAt(offset); err != nil {
			return fmt.Errorf("failed to set restart marker: %w", err)
		}
	}

	return c.runUpload(context.Background(), "STOR", remotePath, r)
}

// listLines opens a data connection for a line-oriented listing command
// (LIST, NLST, MLSD) and calls scan for every line read from it.
func (c *Client) listLines(cmd string, args []string, scan func(line string)) error {
	return c.runDataCommand(context.Background(), cmd, args, transferKindList, func(conn net.Conn) (int64, error) {
		var n int64
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			n += int64(len(scanner.Bytes())) + 1
			scan(scanner.Text())
		}
		return n, scanner.Err()
	})
}
