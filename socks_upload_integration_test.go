package ftp_test

// A minimal SOCKS5 relay, independent of the production client-side
// implementation in socks.go, used only to drive the SOCKS5-tunneled
// upload path (sizeprobe.go, transfer.go's finishSocksUpload) end to end:
// a real STOR over a real SOCKS5 CONNECT tunnel to the fake FTP server,
// with the data channel's apparent byte count controllable per test case.

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/duskline/goftp"
)

type fakeSocksRelay struct {
	t  *testing.T
	ln net.Listener

	acceptCount int32
	dataLimit   int64 // bytes forwarded to the target on the 2nd accepted conn; set per test case
}

func newFakeSocksRelay(t *testing.T) *fakeSocksRelay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	r := &fakeSocksRelay{t: t, ln: ln, dataLimit: math.MaxInt64}
	go r.serve()
	return r
}

func (r *fakeSocksRelay) Addr() string { return r.ln.Addr().String() }

func (r *fakeSocksRelay) Close() { r.ln.Close() }

// limitNextDataConn caps how many bytes of the 2nd accepted connection
// (the upload data channel, by the fixed dial order Login/Store/probe
// establishes) are actually forwarded to the real target, simulating a
// proxy that truncates a transfer while still accepting every byte the
// client wrote.
func (r *fakeSocksRelay) limitNextDataConn(n int64) {
	atomic.StoreInt64(&r.dataLimit, n)
}

func (r *fakeSocksRelay) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		seq := atomic.AddInt32(&r.acceptCount, 1)
		go r.handle(conn, seq)
	}
}

func (r *fakeSocksRelay) handle(conn net.Conn, seq int32) {
	defer conn.Close()

	greet := make([]byte, 2)
	if _, err := io.ReadFull(conn, greet); err != nil {
		return
	}
	methods := make([]byte, greet[1])
	if _, err := io.ReadFull(conn, methods); err != nil {
		return
	}
	if _, err := conn.Write([]byte{5, 0}); err != nil {
		return
	}

	req := make([]byte, 4)
	if _, err := io.ReadFull(conn, req); err != nil {
		return
	}

	var targetHost string
	switch req[3] {
	case 1: // IPv4
		addr := make([]byte, 4)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return
		}
		targetHost = net.IP(addr).String()
	case 4: // IPv6
		addr := make([]byte, 16)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return
		}
		targetHost = net.IP(addr).String()
	case 3: // domain name
		lenByte := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenByte); err != nil {
			return
		}
		dom := make([]byte, lenByte[0])
		if _, err := io.ReadFull(conn, dom); err != nil {
			return
		}
		targetHost = string(dom)
	default:
		return
	}

	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return
	}
	targetPort := int(binary.BigEndian.Uint16(portBuf))

	targetConn, err := net.Dial("tcp", net.JoinHostPort(targetHost, strconv.Itoa(targetPort)))
	if err != nil {
		conn.Write([]byte{5, 5, 0, 1, 0, 0, 0, 0, 0, 0})
		return
	}
	defer targetConn.Close()

	if _, err := conn.Write([]byte{5, 0, 0, 1, 0, 0, 0, 0, 0, 0}); err != nil {
		return
	}

	limit := int64(math.MaxInt64)
	if seq == 2 {
		limit = atomic.LoadInt64(&r.dataLimit)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		copyLimited(targetConn, conn, limit)
		if tc, ok := targetConn.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}()
	go func() {
		defer wg.Done()
		io.Copy(conn, targetConn)
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.CloseWrite()
		}
	}()
	wg.Wait()
}

// copyLimited forwards up to limit bytes from src to dst, but keeps
// draining src past that point so a client writing more than limit bytes
// never blocks on backpressure, matching a truncating proxy that still
// accepts the whole upload from the client's point of view.
func copyLimited(dst io.Writer, src io.Reader, limit int64) {
	buf := make([]byte, 4096)
	var written int64
	for {
		n, err := src.Read(buf)
		if n > 0 && written < limit {
			w := int64(n)
			if written+w > limit {
				w = limit - written
			}
			dst.Write(buf[:w])
			written += w
		}
		if err != nil {
			return
		}
	}
}

// resetInjectingDialer wraps a real dialer and forces the 2nd dialed
// connection's Close (the data channel dial socks5Dial makes to the
// proxy) to return ECONNRESET, deterministically reproducing the
// proxy-resets-after-upload race spec section 4.6 describes without
// depending on real kernel RST timing.
type resetInjectingDialer struct {
	base ftp.Dialer
	n    int32
}

func (d *resetInjectingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := d.base.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	if atomic.AddInt32(&d.n, 1) == 2 {
		return &resetOnCloseConn{Conn: conn}, nil
	}
	return conn, nil
}

type resetOnCloseConn struct {
	net.Conn
}

func (c *resetOnCloseConn) Close() error {
	_ = c.Conn.Close()
	return &net.OpError{Op: "close", Net: "tcp", Err: syscall.ECONNRESET}
}

func TestSocksUpload_SuccessDespiteReset(t *testing.T) {
	rootDir := t.TempDir()
	server := newFakeFTPServer(t, rootDir)
	defer server.Close()

	relay := newFakeSocksRelay(t)
	defer relay.Close()

	dialer := &resetInjectingDialer{base: &net.Dialer{}}
	client, err := ftp.Dial(server.Addr(), ftp.WithSocksProxy(relay.Addr()), ftp.WithCustomDialer(dialer))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Quit()

	if err := client.Login("anonymous", "anon@"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	if err := client.Store("upload.bin", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Store should succeed once the SIZE probe confirms the upload completed, got: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(rootDir, "upload.bin"))
	if err != nil {
		t.Fatalf("failed to read uploaded file: %v", err)
	}
	if len(got) != len(payload) {
		t.Fatalf("server received %d bytes, want %d", len(got), len(payload))
	}
}

func TestSocksUpload_TruncatedRejected(t *testing.T) {
	rootDir := t.TempDir()
	server := newFakeFTPServer(t, rootDir)
	defer server.Close()

	relay := newFakeSocksRelay(t)
	defer relay.Close()
	relay.limitNextDataConn(3000)

	dialer := &resetInjectingDialer{base: &net.Dialer{}}
	client, err := ftp.Dial(server.Addr(), ftp.WithSocksProxy(relay.Addr()), ftp.WithCustomDialer(dialer))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Quit()

	if err := client.Login("anonymous", "anon@"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	payload := make([]byte, 5000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	err = client.Store("upload.bin", bytes.NewReader(payload))
	if err == nil {
		t.Fatal("expected Store to fail once the SIZE probe sees a short upload")
	}
	var incomplete *ftp.TransferIncomplete
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected *ftp.TransferIncomplete, got %T: %v", err, err)
	}
	if incomplete.Sent != 5000 || incomplete.Accepted != 3000 {
		t.Errorf("unexpected TransferIncomplete{Sent: %d, Accepted: %d}", incomplete.Sent, incomplete.Accepted)
	}
}
