package fetch

import (
	"errors"
	"net"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	cases := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.0.0.5", true},
		{"172.16.0.1", true},
		{"192.168.1.1", true},
		{"169.254.1.1", true},
		{"::1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
	}
	for _, c := range cases {
		ip := net.ParseIP(c.ip)
		if ip == nil {
			t.Fatalf("failed to parse test IP %q", c.ip)
		}
		if got := isPrivateIP(ip); got != c.want {
			t.Errorf("isPrivateIP(%s) = %v, want %v", c.ip, got, c.want)
		}
	}
}

func TestValidateURL_RejectsBadScheme(t *testing.T) {
	err := validateURL("ftp://example.com/file", false)
	if !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL for non-http(s) scheme, got %v", err)
	}
}

func TestValidateURL_RejectsUnparseable(t *testing.T) {
	err := validateURL("://not-a-url", false)
	if !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL for unparseable url, got %v", err)
	}
}

func TestValidateURL_RejectsEmptyHostname(t *testing.T) {
	err := validateURL("http:///no-host", false)
	if !errors.Is(err, ErrInvalidURL) {
		t.Errorf("expected ErrInvalidURL for empty hostname, got %v", err)
	}
}

func TestValidateURL_SkipsDNSLookupWhenNotDenied(t *testing.T) {
	if err := validateURL("http://example.com/page", false); err != nil {
		t.Errorf("expected no error when denyPrivateIPs is false, got %v", err)
	}
}

func TestValidateURL_RejectsLoopbackWhenDenied(t *testing.T) {
	err := validateURL("http://localhost/page", true)
	if !errors.Is(err, ErrPrivateIP) {
		t.Errorf("expected ErrPrivateIP for loopback hostname, got %v", err)
	}
}
