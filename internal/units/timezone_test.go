package units

import (
	"testing"
	"time"
)

func TestIsTimezoneValid(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		expected bool
	}{
		{"valid UTC", "UTC", true},
		{"valid US Eastern", "US/Eastern", true},
		{"invalid", "Invalid/Timezone", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := IsTimezoneValid(tt.timezone)
			if res != tt.expected {
				t.Errorf("IsTimezoneValid(%s) = %v, want %v", tt.timezone, res, tt.expected)
			}
		})
	}
}

func TestConvertTime(t *testing.T) {
	utcTime := time.Date(2025, 9, 13, 12, 0, 0, 0, time.UTC)

	t.Run("UTC to UTC", func(t *testing.T) {
		out, err := ConvertTime(utcTime, "UTC")
		if err != nil {
			t.Fatalf("ConvertTime error: %v", err)
		}
		if !out.Equal(utcTime) {
			t.Fatalf("ConvertTime returned %v, want %v", out, utcTime)
		}
	})

	t.Run("UTC to Bangkok", func(t *testing.T) {
		out, err := ConvertTime(utcTime, "Asia/Bangkok")
		if err != nil {
			t.Fatalf("ConvertTime error: %v", err)
		}
		if out.Hour() != 19 {
			t.Fatalf("expected 19:00 wall clock in +07:00, got %v", out)
		}
		if !out.Equal(utcTime) {
			t.Fatal("conversion must not change the instant")
		}
	})

	t.Run("unknown zone", func(t *testing.T) {
		out, err := ConvertTime(utcTime, "Not/AZone")
		if err == nil {
			t.Fatal("expected error for unknown zone")
		}
		if !out.Equal(utcTime) {
			t.Fatal("unknown zone should return the input time")
		}
	})
}
