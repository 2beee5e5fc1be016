package ftp

import (
	"testing"
)

func TestResolveDataAddr(t *testing.T) {
	tests := []struct {
		name        string
		pasvAddr    string
		controlHost string
		wantAddr    string
	}{
		{
			name:        "normal address",
			pasvAddr:    "192.168.1.5:12345",
			controlHost: "10.0.0.1",
			wantAddr:    "192.168.1.5:12345",
		},
		{
			name:        "zero address",
			pasvAddr:    "0.0.0.0:12345",
			controlHost: "10.0.0.1",
			wantAddr:    "10.0.0.1:12345",
		},
		{
			name:        "invalid address",
			pasvAddr:    "invalid",
			controlHost: "10.0.0.1",
			wantAddr:    "invalid", // Or handle error? The split might fail.
		},
		{
			name:        "NAT repair: private PASV host behind public control remote",
			pasvAddr:    "10.0.0.5:12345",
			controlHost: "203.0.113.7",
			wantAddr:    "203.0.113.7:12345",
		},
		{
			name:        "both public, no repair",
			pasvAddr:    "203.0.113.7:12345",
			controlHost: "203.0.113.7",
			wantAddr:    "203.0.113.7:12345",
		},
		{
			name:        "private PASV host with empty control host, no repair",
			pasvAddr:    "192.168.1.5:12345",
			controlHost: "",
			wantAddr:    "192.168.1.5:12345",
		},
		{
			name:        "172.16/12 private range repaired",
			pasvAddr:    "172.16.0.9:4000",
			controlHost: "198.51.100.2",
			wantAddr:    "198.51.100.2:4000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveDataAddr(tt.pasvAddr, tt.controlHost)
			if got != tt.wantAddr {
				t.Errorf("resolveDataAddr() = %v, want %v", got, tt.wantAddr)
			}
		})
	}
}
