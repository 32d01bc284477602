package dispatch

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (555) 123-4567", "15551234567@c.us"},
		{"555-1234", "5551234@c.us"},
		{"5551234", "5551234@c.us"},
		{"15551234567@c.us", "15551234567@c.us"}, // already normalized
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Errorf("Normalize(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	first, err := Normalize("+44 7700 900123")
	if err != nil {
		t.Fatal(err)
	}
	second, err := Normalize(first)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("Normalize(Normalize(x)) = %q, want %q", second, first)
	}
}

func TestNormalizeRejectsEmptyLocalPart(t *testing.T) {
	for _, in := range []string{"", "---", "abc", "@c.us"} {
		_, err := Normalize(in)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Normalize(%q) error = %v, want ErrInvalidRequest", in, err)
		}
	}
}
