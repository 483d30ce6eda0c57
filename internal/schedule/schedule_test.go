package schedule

import (
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	s, err := Parse("90s")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if s.Kind != KindInterval {
		t.Errorf("expected kind 'interval', got '%s'", s.Kind)
	}
	if s.Interval != 90*time.Second {
		t.Errorf("expected interval 90s, got %v", s.Interval)
	}
}

func TestParseCron(t *testing.T) {
	s, err := Parse(" 0 9 * * * ")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if s.Kind != KindCron {
		t.Errorf("expected kind 'cron', got '%s'", s.Kind)
	}
	if s.CronExpr != "0 9 * * *" {
		t.Errorf("expected cron expr '0 9 * * *', got '%s'", s.CronExpr)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, raw := range []string{"", "-5m", "0s", "not a schedule", "* * *"} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestNextInterval(t *testing.T) {
	s, _ := Parse("1h")
	now := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	next, err := s.Next(now)
	if err != nil {
		t.Fatal(err)
	}
	if want := now.Add(time.Hour); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextCron(t *testing.T) {
	s, _ := Parse("0 9 * * *")
	now := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	next, err := s.Next(now)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
	if !next.After(now) {
		t.Error("expected next run after now")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{"@daily", "@daily"},
		{"0 9 * * *", "0 9 * * *"},
		{"1h", "Every hour"},
		{"2h", "Every 2 hours"},
		{"1m", "Every minute"},
		{"30m", "Every 30 minutes"},
		{"45s", "Every 45s"},
	}
	for _, tt := range tests {
		s, err := Parse(tt.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.raw, err)
		}
		if got := s.String(); got != tt.expected {
			t.Errorf("String(%q) = %q, want %q", tt.raw, got, tt.expected)
		}
	}
}
