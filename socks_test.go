package ftp

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestEncodeSocksAddr_IPv4(t *testing.T) {
	got, err := encodeSocksAddr("192.168.1.5")
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{socksAtypIPv4, 192, 168, 1, 5}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEncodeSocksAddr_IPv6(t *testing.T) {
	got, err := encodeSocksAddr("::1")
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != socksAtypIPv6 || len(got) != 17 {
		t.Errorf("unexpected IPv6 encoding: %v", got)
	}
}

func TestEncodeSocksAddr_Domain(t *testing.T) {
	got, err := encodeSocksAddr("ftp.example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != socksAtypDomain {
		t.Fatalf("expected domain ATYP, got 0x%02x", got[0])
	}
	if got[1] != byte(len("ftp.example.com")) {
		t.Errorf("unexpected domain length byte: %d", got[1])
	}
	if string(got[2:]) != "ftp.example.com" {
		t.Errorf("unexpected domain bytes: %q", got[2:])
	}
}

func TestEncodeSocksAddr_DomainTooLong(t *testing.T) {
	long := make([]byte, 256)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := encodeSocksAddr(string(long)); err == nil {
		t.Error("expected an error for a domain name over 255 bytes")
	}
}

func TestSocksSession_QueueWriteBeforeEstablished(t *testing.T) {
	s := &socksSession{stage: socksGreeting}
	s.queueWrite([]byte("USER anon\r\n"))
	s.queueWrite([]byte("PASS anon\r\n"))

	if len(s.pendingWrites) != 2 {
		t.Fatalf("expected 2 pending writes, got %d", len(s.pendingWrites))
	}
}

func TestSocksSession_QueueWriteAfterEstablishedIsNoop(t *testing.T) {
	s := &socksSession{stage: socksEstablished}
	s.queueWrite([]byte("USER anon\r\n"))

	if len(s.pendingWrites) != 0 {
		t.Errorf("expected no buffering once established, got %d pending writes", len(s.pendingWrites))
	}
}

func TestSocksSession_FlushPendingOrder(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := &socksSession{stage: socksConnectReply}
	s.queueWrite([]byte("AAA"))
	s.queueWrite([]byte("BBB"))
	s.stage = socksEstablished

	errCh := make(chan error, 1)
	go func() { errCh <- s.flushPending(client) }()

	buf := make([]byte, 6)
	server.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := ioReadFull(server, buf); err != nil {
		t.Fatalf("failed to read flushed bytes: %v", err)
	}
	if string(buf) != "AAABBB" {
		t.Errorf("expected writes flushed in FIFO order, got %q", buf)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("flushPending returned error: %v", err)
	}
	if s.pendingWrites != nil {
		t.Error("expected pendingWrites to be cleared after flush")
	}
}

func TestSocksGreet_Success(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 3)
		ioReadFull(server, buf)
		server.Write([]byte{socksVersion5, socksMethodNoAuth})
	}()

	if err := socksGreet(client); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSocksGreet_RejectsAllMethods(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, 3)
		ioReadFull(server, buf)
		server.Write([]byte{socksVersion5, socksMethodNone})
	}()

	err := socksGreet(client)
	if err == nil {
		t.Fatal("expected an error when the proxy rejects all auth methods")
	}
	sockErr, ok := err.(*SocksError)
	if !ok {
		t.Fatalf("expected *SocksError, got %T", err)
	}
	if sockErr.Code != socksMethodNone {
		t.Errorf("expected Code=0xFF, got 0x%02x", sockErr.Code)
	}
}

func TestSocksConnect_Success(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sess := &socksSession{targetHost: "192.168.1.5", targetPort: 21}

	go func() {
		hdr := make([]byte, 4)
		ioReadFull(server, hdr) // VER CMD RSV ATYP
		addr := make([]byte, 4)
		ioReadFull(server, addr)
		port := make([]byte, 2)
		ioReadFull(server, port)

		// Reply: success, bound address 0.0.0.0:0
		server.Write([]byte{socksVersion5, 0x00, socksRSV, socksAtypIPv4, 0, 0, 0, 0, 0, 0})
	}()

	if err := socksConnect(client, sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSocksConnect_HostUnreachable(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sess := &socksSession{targetHost: "192.168.1.5", targetPort: 21}

	go func() {
		hdr := make([]byte, 4)
		ioReadFull(server, hdr)
		addr := make([]byte, 4)
		ioReadFull(server, addr)
		port := make([]byte, 2)
		ioReadFull(server, port)

		server.Write([]byte{socksVersion5, 0x04, socksRSV, socksAtypIPv4})
	}()

	err := socksConnect(client, sess)
	if err == nil {
		t.Fatal("expected an error for REP=0x04 (host unreachable)")
	}
	sockErr, ok := err.(*SocksError)
	if !ok {
		t.Fatalf("expected *SocksError, got %T", err)
	}
	if sockErr.Reason != "host unreachable" {
		t.Errorf("unexpected reason: %q", sockErr.Reason)
	}
}
