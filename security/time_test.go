package security

import (
	"testing"
	"time"
)

func TestIsExpiredWithGracePeriod(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		grace     time.Duration
		want      bool
	}{
		{"future expiry", now.Add(time.Hour), 5 * time.Second, false},
		{"just expired within grace", now.Add(-2 * time.Second), 5 * time.Second, false},
		{"expired beyond grace", now.Add(-10 * time.Second), 5 * time.Second, true},
		{"zero expiry never expires", time.Time{}, 5 * time.Second, false},
		{"no grace", now.Add(-time.Millisecond), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpiredWithGracePeriod(tt.expiresAt, tt.grace); got != tt.want {
				t.Errorf("IsExpiredWithGracePeriod() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsExpired(t *testing.T) {
	if IsExpired(time.Now().Add(time.Minute)) {
		t.Error("future expiry reported as expired")
	}
	if !IsExpired(time.Now().Add(-time.Minute)) {
		t.Error("past expiry not reported as expired")
	}
}
