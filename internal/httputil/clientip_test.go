package httputil

import (
	"net/http"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trust      bool
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{name: "ipv4 with port", remoteAddr: "192.0.2.7:51234", want: "192.0.2.7"},
		{name: "ipv6 with port", remoteAddr: "[2001:db8::5]:443", want: "2001:db8::5"},
		{name: "bare address", remoteAddr: "192.0.2.7", want: "192.0.2.7"},
		{name: "mapped ipv4 unmapped", remoteAddr: "[::ffff:198.51.100.4]:8080", want: "198.51.100.4"},
		{name: "unparseable remote kept as is", remoteAddr: "pipe", want: "pipe"},
		{
			name: "headers ignored without trust", xff: "203.0.113.9", xri: "203.0.113.10",
			remoteAddr: "10.1.2.3:9000", want: "10.1.2.3",
		},
		{
			name: "leftmost forwarded entry", trust: true, xff: " 203.0.113.9 , 10.0.0.1, 10.0.0.2",
			remoteAddr: "10.0.0.3:9000", want: "203.0.113.9",
		},
		{
			name: "forwarded before real ip", trust: true, xff: "203.0.113.9", xri: "203.0.113.10",
			remoteAddr: "10.0.0.3:9000", want: "203.0.113.9",
		},
		{
			name: "garbage forwarded falls to real ip", trust: true, xff: "unknown", xri: "203.0.113.10:7000",
			remoteAddr: "10.0.0.3:9000", want: "203.0.113.10",
		},
		{
			name: "garbage headers fall to remote", trust: true, xff: "<script>", xri: "nope",
			remoteAddr: "10.0.0.3:9000", want: "10.0.0.3",
		},
		{
			name: "no headers with trust", trust: true,
			remoteAddr: "10.0.0.3:9000", want: "10.0.0.3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, tt.trust); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
