package models

import (
	"testing"
	"time"
)

func TestHeartbeat_Stale(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		hb   Heartbeat
		want bool
	}{
		{"fresh", Heartbeat{ReceiveTime: now.Add(-10 * time.Second), Timeout: 60}, false},
		{"expired", Heartbeat{ReceiveTime: now.Add(-2 * time.Minute), Timeout: 60}, true},
		{"no timeout", Heartbeat{ReceiveTime: now.Add(-24 * time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.hb.Stale(now); got != tt.want {
				t.Errorf("Stale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseTags(t *testing.T) {
	tests := []struct {
		tag       string
		wantKey   string
		wantValue string
	}{
		{"site=lon", "site", "lon"},
		{"owner=ops=team", "owner", "ops=team"},
		{"flag", "flag", ""},
		{"empty=", "empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			k, v := ParseTag(tt.tag)
			if k != tt.wantKey || v != tt.wantValue {
				t.Errorf("ParseTag(%q) = %q, %q; want %q, %q", tt.tag, k, v, tt.wantKey, tt.wantValue)
			}
		})
	}

	m := ParseTags([]string{"site=lon", "", "site=nyc", "rack=r1"})
	if len(m) != 2 || m["site"] != "nyc" || m["rack"] != "r1" {
		t.Errorf("unexpected tag map: %v", m)
	}
}
