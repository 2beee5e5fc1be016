package ftp

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
)

// socksStage tracks where a SOCKS5 CONNECT negotiation currently is.
// Grounded on the session State enum used by the pack's own SOCKS5
// proxy implementation (billy-rubin-Socks-proxy/internal/domain/model.go),
// trimmed to the three stages a client-side CONNECT actually passes
// through.
type socksStage int

const (
	socksGreeting socksStage = iota
	socksConnectReply
	socksEstablished
)

const (
	socksVersion5    = 0x05
	socksMethodNoAuth = 0x00
	socksMethodNone  = 0xFF
	socksCmdConnect  = 0x01
	socksRSV         = 0x00

	socksAtypIPv4   = 0x01
	socksAtypDomain = 0x03
	socksAtypIPv6   = 0x04
)

// socksReplyReasons maps the SOCKS5 REP byte to a human reason, per RFC 1928
// section 6.
var socksReplyReasons = map[byte]string{
	0x00: "succeeded",
	0x01: "general SOCKS server failure",
	0x02: "connection not allowed by ruleset",
	0x03: "network unreachable",
	0x04: "host unreachable",
	0x05: "connection refused",
	0x06: "TTL expired",
	0x07: "command not supported",
	0x08: "address type not supported",
}

// socksSession models the client side of one SOCKS5 CONNECT negotiation.
// Go's net.Conn is a blocking stream, so socks5Dial never returns a
// not-yet-Established tunnel to its caller — but the staged struct is kept
// (and exercised directly by socks_test.go) because spec section 4.4's
// buffered-I/O contract is a testable property in its own right: writes
// issued against the session before the transition to socksEstablished
// must queue and flush in order, never interleave with the handshake
// bytes, and never reach the wire early.
type socksSession struct {
	proxyHost  string
	proxyPort  string
	targetHost string
	targetPort int

	stage socksStage

	pendingWrites [][]byte
}

// queueWrite buffers a write made before the tunnel reaches
// socksEstablished. Buffered bytes are flushed, in FIFO order, by
// flushPending once the session transitions.
func (s *socksSession) queueWrite(p []byte) {
	if s.stage == socksEstablished {
		return
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	s.pendingWrites = append(s.pendingWrites, buf)
}

// flushPending drains the pending-write queue onto conn in submission
// order and clears it. Called exactly once, at the Established
// transition.
func (s *socksSession) flushPending(conn net.Conn) error {
	for _, buf := range s.pendingWrites {
		if _, err := conn.Write(buf); err != nil {
			return err
		}
	}
	s.pendingWrites = nil
	return nil
}

// encodeSocksAddr renders host as a SOCKS5 address field: ATYP followed by
// the address bytes. IPv4 addresses use the 4-byte form, IPv6 the 16-byte
// expanded form, anything else is sent as a domain name (ATYP 0x03).
func encodeSocksAddr(host string) ([]byte, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return append([]byte{socksAtypIPv4}, v4...), nil
		}
		v6 := ip.To16()
		if v6 == nil {
			return nil, fmt.Errorf("socks5: unrecognized IP address %q", host)
		}
		return append([]byte{socksAtypIPv6}, v6...), nil
	}

	if len(host) > 255 {
		return nil, fmt.Errorf("socks5: domain name too long: %d bytes", len(host))
	}
	out := make([]byte, 0, 2+len(host))
	out = append(out, socksAtypDomain, byte(len(host)))
	out = append(out, host...)
	return out, nil
}

// socks5Dial connects to proxyAddr and negotiates an unauthenticated SOCKS5
// CONNECT to targetHost:targetPort, returning a net.Conn that forwards
// payload bytes transparently once established. Only the no-auth method
// (0x00) is offered; username/password auth is out of scope (spec section
// 9's documented limitation).
func socks5Dial(ctx context.Context, dialer Dialer, proxyAddr, targetHost string, targetPort int) (net.Conn, error) {
	proxyHost, proxyPort, err := net.SplitHostPort(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5: invalid proxy address %q: %w", proxyAddr, err)
	}

	sess := &socksSession{
		proxyHost:  proxyHost,
		proxyPort:  proxyPort,
		targetHost: targetHost,
		targetPort: targetPort,
		stage:      socksGreeting,
	}

	conn, err := dialer.DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, &SocksError{Reason: fmt.Sprintf("failed to reach proxy: %v", err)}
	}

	if err := socksGreet(conn); err != nil {
		conn.Close()
		return nil, err
	}
	sess.stage = socksConnectReply

	if err := socksConnect(conn, sess); err != nil {
		conn.Close()
		return nil, err
	}
	sess.stage = socksEstablished

	if err := sess.flushPending(conn); err != nil {
		conn.Close()
		return nil, &SocksError{Reason: fmt.Sprintf("failed flushing buffered writes: %v", err)}
	}

	return conn, nil
}

// socksGreet performs the method-negotiation stage: "05 01 00" out,
// "05 00" expected in.
func socksGreet(conn net.Conn) error {
	if _, err := conn.Write([]byte{socksVersion5, 0x01, socksMethodNoAuth}); err != nil {
		return &SocksError{Reason: fmt.Sprintf("greeting write failed: %v", err)}
	}

	reply := make([]byte, 2)
	if _, err := ioReadFull(conn, reply); err != nil {
		return &SocksError{Reason: fmt.Sprintf("greeting read failed: %v", err)}
	}
	if reply[0] != socksVersion5 {
		return &SocksError{Reason: fmt.Sprintf("unexpected SOCKS version %d", reply[0])}
	}
	if reply[1] == socksMethodNone {
		return &SocksError{Reason: "proxy rejected all offered auth methods", Code: reply[1]}
	}
	if reply[1] != socksMethodNoAuth {
		return &SocksError{Reason: fmt.Sprintf("proxy requires unsupported auth method 0x%02x", reply[1]), Code: reply[1]}
	}
	return nil
}

// socksConnect performs the CONNECT request/reply stage.
func socksConnect(conn net.Conn, sess *socksSession) error {
	addr, err := encodeSocksAddr(sess.targetHost)
	if err != nil {
		return &SocksError{Reason: err.Error()}
	}

	req := make([]byte, 0, 6+len(addr))
	req = append(req, socksVersion5, socksCmdConnect, socksRSV)
	req = append(req, addr...)
	port := make([]byte, 2)
	binary.BigEndian.PutUint16(port, uint16(sess.targetPort))
	req = append(req, port...)

	if _, err := conn.Write(req); err != nil {
		return &SocksError{Reason: fmt.Sprintf("connect request write failed: %v", err)}
	}

	// Read the fixed header: VER REP RSV ATYP
	hdr := make([]byte, 4)
	if _, err := ioReadFull(conn, hdr); err != nil {
		return &SocksError{Reason: fmt.Sprintf("connect reply read failed: %v", err)}
	}
	if hdr[0] != socksVersion5 {
		return &SocksError{Reason: fmt.Sprintf("unexpected SOCKS version %d in reply", hdr[0])}
	}
	if hdr[2] != socksRSV {
		return &SocksError{Reason: "malformed reply: RSV byte not zero"}
	}
	if hdr[1] != 0x00 {
		reason, ok := socksReplyReasons[hdr[1]]
		if !ok {
			reason = "unknown error"
		}
		return &SocksError{Reason: reason, Code: hdr[1]}
	}

	// Drain the bound-address field (ATYP-dependent length); its contents
	// are not needed by a CONNECT client.
	var addrLen int
	switch hdr[3] {
	case socksAtypIPv4:
		addrLen = 4
	case socksAtypIPv6:
		addrLen = 16
	case socksAtypDomain:
		lenByte := make([]byte, 1)
		if _, err := ioReadFull(conn, lenByte); err != nil {
			return &SocksError{Reason: fmt.Sprintf("connect reply domain length read failed: %v", err)}
		}
		addrLen = int(lenByte[0])
	default:
		return &SocksError{Reason: fmt.Sprintf("unsupported address type 0x%02x in reply", hdr[3])}
	}

	rest := make([]byte, addrLen+2) // address + port
	if _, err := ioReadFull(conn, rest); err != nil {
		return &SocksError{Reason: fmt.Sprintf("connect reply address read failed: %v", err)}
	}

	return nil
}

// ioReadFull reads exactly len(buf) bytes, mapping io.EOF/io.ErrUnexpectedEOF
// into a form callers don't need to special-case.
func ioReadFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
