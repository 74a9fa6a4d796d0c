package pkg

import (
	"testing"
	"time"
)

func TestMaskAccountNumber(t *testing.T) {
	if got := MaskAccountNumber("1234567890"); got != "******7890" {
		t.Fatalf("Expected ******7890, got %s", got)
	}
	if got := MaskAccountNumber("123"); got != "123" {
		t.Fatalf("Expected short number unchanged, got %s", got)
	}
}

func TestNormalize(t *testing.T) {
	if got := NormalizeCurrency(" usd "); got != "USD" {
		t.Fatalf("Expected USD, got %s", got)
	}
	if got := NormalizeEmail(" Bob@Example.COM"); got != "bob@example.com" {
		t.Fatalf("Expected bob@example.com, got %s", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[time.Duration]string{
		250 * time.Millisecond:  "250ms",
		1500 * time.Millisecond: "1.50s",
		90 * time.Second:        "1.50m",
		3 * time.Hour:           "3.00h",
	}
	for d, want := range cases {
		if got := FormatDuration(d); got != want {
			t.Fatalf("FormatDuration(%s): expected %s, got %s", d, want, got)
		}
	}
}

func TestFormatRate(t *testing.T) {
	if got := FormatRate(10, 0); got != "0 msg/s" {
		t.Fatalf("Expected 0 msg/s, got %s", got)
	}
	if got := FormatRate(10, 4*time.Second); got != "2.50 msg/s" {
		t.Fatalf("Expected 2.50 msg/s, got %s", got)
	}
}
