package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"strconv"
)

var (
	// pasvRegex matches the PASV response format: 227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)
	pasvRegex = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

	// epsvRegex matches the EPSV response's parenthesized field, e.g.
	// "(|||6446|)" or the RFC 2428 alternate-delimiter form "(!!!6446!)".
	// RE2 (Go's regexp engine) has no backreferences, so the delimiter
	// isn't pinned to "|" here — parseEPSV checks that all four
	// delimiter characters in the capture actually match.
	epsvRegex = regexp.MustCompile(`\((\S)(\S)(\S)(\d+)(\S)\)`)

	// privateCIDRs are the RFC 1918 ranges a PASV/EPSV reply is rewritten
	// away from when the control channel's own remote address is public.
	privateCIDRs = mustParseCIDRs(
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
	)
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

func isPrivateIP(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range privateCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// parsePASV parses a PASV response and returns the host and port.
// Example: "227 Entering Passive Mode (192,168,1,1,195,149)"
// Returns: "192.168.1.1:50069" (195*256 + 149 = 50069)
func parsePASV(response string) (string, error) {
	matches := pasvRegex.FindStringSubmatch(response)
	if len(matches) != 7 {
		return "", fmt.Errorf("invalid PASV response: %s", response)
	}

	var h [4]int
	for i := 0; i < 4; i++ {
		val, err := strconv.Atoi(matches[i+1])
		if err != nil || val < 0 || val > 255 {
			return "", fmt.Errorf("invalid PASV IP part: %s", matches[i+1])
		}
		h[i] = val
	}
	host := fmt.Sprintf("%d.%d.%d.%d", h[0], h[1], h[2], h[3])
	if ip := net.ParseIP(host); ip == nil || ip.To4() == nil {
		return "", fmt.Errorf("invalid IPv4 address from PASV: %s", host)
	}

	p1, err1 := strconv.Atoi(matches[5])
	p2, err2 := strconv.Atoi(matches[6])
	if err1 != nil || err2 != nil || p1 < 0 || p1 > 255 || p2 < 0 || p2 > 255 {
		return "", fmt.Errorf("invalid PASV port parts: %s, %s", matches[5], matches[6])
	}
	port := p1*256 + p2

	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// parseEPSV parses an EPSV response and returns the port.
// Example: "229 Entering Extended Passive Mode (|||6446|)"
// Returns: "6446"
func parseEPSV(response string) (string, error) {
	matches := epsvRegex.FindStringSubmatch(response)
	if len(matches) != 6 {
		return "", fmt.Errorf("invalid EPSV response: %s", response)
	}

	delim, d1, d2, portStr, d3 := matches[1], matches[2], matches[3], matches[4], matches[5]
	if d1 != delim || d2 != delim || d3 != delim {
		return "", fmt.Errorf("invalid EPSV response: %s", response)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", fmt.Errorf("invalid EPSV port: %s", portStr)
	}

	return portStr, nil
}

// resolveDataAddr resolves the address a PASV/EPSV reply names into the
// address actually worth dialing. Two repairs apply, both versions of the
// same NAT problem: the server reporting an address the client cannot
// route to.
//
//   - 0.0.0.0 is always replaced with controlHost (some servers report the
//     wildcard when they don't know their own external address).
//   - An RFC 1918 private address is replaced with controlHost whenever
//     controlHost itself is not private — the classic case of a server
//     behind NAT reporting its LAN-side IP to a client connecting from
//     outside.
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil {
		return pasvAddr
	}

	if host == "0.0.0.0" {
		return net.JoinHostPort(controlHost, port)
	}

	if isPrivateIP(host) && controlHost != "" && !isPrivateIP(controlHost) {
		return net.JoinHostPort(controlHost, port)
	}

	return pasvAddr
}

// controlRemoteHost returns the IP the control connection is actually
// talking to, for resolveDataAddr's NAT repair. Falls back to the
// configured host when the connection's remote address can't be split.
func (c *Client) controlRemoteHost() string {
	if c.conn == nil {
		return c.host
	}
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.host
	}
	return host
}

// openDataConnLocked negotiates passive mode and dials the resulting data
// address. The caller must already hold the queue lock: PASV/EPSV is a
// control-channel round trip and must not interleave with any other
// command. Active mode (PORT/EPRT) is out of scope.
func (c *Client) openDataConnLocked(ctx context.Context) (net.Conn, error) {
	var addr string

	if !c.disableEPSV {
		if resp, err := c.sendCommandLocked("EPSV"); err == nil {
			if resp.Code == 502 {
				c.disableEPSV = true
			} else if resp.Is2xx() {
				if port, parseErr := parseEPSV(resp.String()); parseErr == nil {
					addr = net.JoinHostPort(c.host, port)
				}
			}
		}
	}

	if addr == "" {
		resp, err := c.sendCommandLocked("PASV")
		if err != nil {
			return nil, &DataConnectError{Err: err}
		}
		if !resp.Is2xx() {
			return nil, &DataConnectError{Err: &ProtocolError{Command: "PASV", Response: resp.Message, Code: resp.Code}}
		}
		addr, err = parsePASV(resp.String())
		if err != nil {
			return nil, &DataConnectError{Err: err}
		}
		addr = resolveDataAddr(addr, c.controlRemoteHost())
	}

	dataConn, err := c.dial(ctx, addr)
	if err != nil {
		return nil, &DataConnectError{Err: err}
	}

	if c.tlsConfig != nil {
		tlsConn := tls.Client(dataConn, c.tlsConfig)
		if err := tlsConn.Handshake(); err != nil {
			dataConn.Close()
			return nil, &DataConnectError{Err: fmt.Errorf("data connection TLS handshake failed: %w", err)}
		}
		dataConn = tlsConn
	}

	if c.timeout > 0 {
		return &deadlineConn{Conn: dataConn, timeout: c.timeout}, nil
	}

	return dataConn, nil
}
