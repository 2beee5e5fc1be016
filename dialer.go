package ftp

import (
	"context"
	"net"
)

// Dialer abstracts the network dial used for both the control connection
// and every data connection. The default is a *net.Dialer; when
// WithSocksProxy is set, the Client substitutes a dialer that tunnels
// through a SOCKS5 proxy instead, transparently to every caller that only
// ever sees a net.Conn.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// netDialer adapts *net.Dialer to the Dialer interface.
type netDialer struct {
	d *net.Dialer
}

func (n *netDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return n.d.DialContext(ctx, network, address)
}
