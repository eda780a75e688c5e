package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) D {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestRoundFiat_HalfEven(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.005", "1"},    // banker's rounding: 0 is even, rounds down to 1.00; String() drops trailing zeros
		{"1.015", "1.02"}, // 2 is even, rounds up
		{"1.025", "1.02"},
		{"2.345", "2.34"},
	}
	for _, tt := range tests {
		got := RoundFiat(d(tt.in))
		if got.String() != tt.want {
			t.Errorf("RoundFiat(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSafeDiv_ZeroDenominator(t *testing.T) {
	got := SafeDiv(d("100"), decimal.Zero)
	if !got.Equal(decimal.Zero) {
		t.Errorf("SafeDiv with zero denominator = %s, want 0", got)
	}
}

func TestSafeDiv_Normal(t *testing.T) {
	got := SafeDiv(d("10"), d("4"))
	if !got.Equal(d("2.5")) {
		t.Errorf("SafeDiv(10, 4) = %s, want 2.5", got)
	}
}

func TestPctOf(t *testing.T) {
	got := PctOf(d("200"), d("10"))
	if !got.Equal(d("20")) {
		t.Errorf("PctOf(200, 10%%) = %s, want 20", got)
	}
}

func TestMaxMinD(t *testing.T) {
	a, b := d("5"), d("9")
	if !MaxD(a, b).Equal(b) {
		t.Errorf("MaxD(5, 9) should be 9")
	}
	if !MinD(a, b).Equal(a) {
		t.Errorf("MinD(5, 9) should be 5")
	}
}

func TestNonNegative(t *testing.T) {
	if !NonNegative(d("-5")).Equal(decimal.Zero) {
		t.Errorf("NonNegative(-5) should clamp to 0")
	}
	if !NonNegative(d("5")).Equal(d("5")) {
		t.Errorf("NonNegative(5) should be unchanged")
	}
}

func TestFromString_Malformed(t *testing.T) {
	got := FromString("not-a-number")
	if !got.Equal(decimal.Zero) {
		t.Errorf("FromString(malformed) = %s, want 0", got)
	}
}

func TestTextScanValue_RoundTrip(t *testing.T) {
	var tx Text
	if err := tx.Scan("123.45600000"); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if !tx.D.Equal(d("123.456")) {
		t.Errorf("scanned value = %s, want 123.456", tx.D)
	}

	v, err := tx.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != tx.D.String() {
		t.Errorf("Value() = %v, want %s", v, tx.D.String())
	}
}

func TestTextScan_Nil(t *testing.T) {
	var tx Text
	tx.D = d("5")
	if err := tx.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !tx.D.Equal(decimal.Zero) {
		t.Errorf("Scan(nil) should zero the value, got %s", tx.D)
	}
}

func TestTextScan_UnsupportedType(t *testing.T) {
	var tx Text
	if err := tx.Scan(42); err == nil {
		t.Error("expected error scanning unsupported type")
	}
}
