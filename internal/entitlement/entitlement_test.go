package entitlement

import (
	"testing"
	"time"
)

func TestRecord_Allowed(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		record Record
		want   bool
	}{
		{"inactive", Record{Active: false}, false},
		{"active without expiry", Record{Active: true}, true},
		{"active future expiry", Record{Active: true, ExpiresAt: now.Add(time.Hour)}, true},
		{"expires exactly now", Record{Active: true, ExpiresAt: now}, false},
		{"expired", Record{Active: true, ExpiresAt: now.Add(-time.Minute)}, false},
		{"inactive future expiry", Record{Active: false, ExpiresAt: now.Add(time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.Allowed(now); got != tt.want {
				t.Errorf("Allowed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatic_Current(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(time.Hour)

	s := NewStatic(" alice ", Record{Active: true, ExpiresAt: expiry})
	s.now = func() time.Time { return now }

	g := s.Current()
	if g.Principal != "alice" || !g.Allowed {
		t.Fatalf("Current() = %+v", g)
	}

	s.now = func() time.Time { return expiry.Add(time.Second) }
	if s.Current().Allowed {
		t.Error("grant still allowed after expiry")
	}

	blank := NewStatic("  ", Record{Active: true})
	if blank.Current().Allowed {
		t.Error("blank principal allowed")
	}
}
