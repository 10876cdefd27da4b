package api

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestIPRateLimiterEnforcesBurst(t *testing.T) {
	rl := NewIPRateLimiter(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             3,
		CleanupInterval:   time.Minute,
	})
	t.Cleanup(rl.Stop)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d inside burst rejected", i)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Errorf("request beyond burst allowed")
	}

	// Buckets are per IP.
	if !rl.Allow("5.6.7.8") {
		t.Errorf("fresh IP rejected")
	}
}

func TestWebSocketLimiterCapsAndReleases(t *testing.T) {
	wrl := NewWebSocketRateLimiter(2)

	if !wrl.Allow("1.2.3.4") || !wrl.Allow("1.2.3.4") {
		t.Fatalf("connections under the cap rejected")
	}
	if wrl.Allow("1.2.3.4") {
		t.Errorf("connection over the cap allowed")
	}

	wrl.Release("1.2.3.4")
	if !wrl.Allow("1.2.3.4") {
		t.Errorf("released slot not reusable")
	}
}

func TestGetClientIPPrefersForwardedHeaders(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		xri    string
		remote string
		want   string
	}{
		{"forwarded chain", "9.9.9.9, 10.0.0.1", "", "127.0.0.1:1234", "9.9.9.9"},
		{"single forwarded", "9.9.9.9", "", "127.0.0.1:1234", "9.9.9.9"},
		{"real ip", "", "8.8.8.8", "127.0.0.1:1234", "8.8.8.8"},
		{"remote addr", "", "", "127.0.0.1:1234", "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP = %s, want %s", got, tt.want)
			}
		})
	}
}
