package ftp

import (
	"crypto/tls"
	"testing"
)

// Client certificates for mutual TLS are supplied the same way as any other
// tls.Config field: callers set Certificates on the *tls.Config passed to
// WithExplicitTLS/WithImplicitTLS. These tests only check that the option
// plumbs the config through untouched; end-to-end handshake behavior is
// covered by the TLS integration tests.
func TestWithExplicitTLS_PreservesClientCertificates(t *testing.T) {
	cert := tls.Certificate{Certificate: [][]byte{[]byte("stub-cert-bytes")}}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	c := &Client{}
	if err := WithExplicitTLS(cfg)(c); err != nil {
		t.Fatalf("WithExplicitTLS failed: %v", err)
	}

	if len(c.tlsConfig.Certificates) != 1 {
		t.Fatalf("expected 1 client certificate, got %d", len(c.tlsConfig.Certificates))
	}
	if c.tlsConfig.ClientSessionCache == nil {
		t.Error("expected ClientSessionCache to be populated by default")
	}
}

func TestWithImplicitTLS_PreservesClientCertificates(t *testing.T) {
	cert := tls.Certificate{Certificate: [][]byte{[]byte("stub-cert-bytes")}}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	c := &Client{}
	if err := WithImplicitTLS(cfg)(c); err != nil {
		t.Fatalf("WithImplicitTLS failed: %v", err)
	}

	if len(c.tlsConfig.Certificates) != 1 {
		t.Fatalf("expected 1 client certificate, got %d", len(c.tlsConfig.Certificates))
	}
}
