package phone

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"910-444-2405", "+19104442405"},
		{"19104442405", "+19104442405"},
		{"+19104442405", "+19104442405"},
		{"(910) 444-2405", "+19104442405"},
		{" +1 910 444 2405 ", "+19104442405"},
		{"1-877-780-4236", "+18777804236"},
	}

	for _, test := range tests {
		result, err := Normalize(test.input, "1")
		if err != nil {
			t.Errorf("Normalize(%q) returned error: %v", test.input, err)
			continue
		}
		if result != test.expected {
			t.Errorf("Normalize(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"910-444-2405", "+442071838750", "19104442405"}

	for _, input := range inputs {
		once, err := Normalize(input, "1")
		if err != nil {
			t.Fatalf("Normalize(%q) returned error: %v", input, err)
		}
		twice, err := Normalize(once, "1")
		if err != nil {
			t.Fatalf("Normalize(%q) returned error: %v", once, err)
		}
		if once != twice {
			t.Errorf("Normalize is not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestNormalizeInvalid(t *testing.T) {
	inputs := []string{"", "abc", "++", "12345", "12345678901234567890"}

	for _, input := range inputs {
		_, err := Normalize(input, "1")
		if err == nil {
			t.Errorf("Normalize(%q) expected error, got none", input)
			continue
		}
		if !errors.Is(err, ErrInvalidPhoneNumber) {
			t.Errorf("Normalize(%q) error = %v, expected ErrInvalidPhoneNumber", input, err)
		}
	}
}

func TestNormalizerDefaultCallingCode(t *testing.T) {
	n := NewNormalizer("44")

	result, err := n.Normalize("20 7183 8750")
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if result != "+442071838750" {
		t.Errorf("Normalize = %q, expected %q", result, "+442071838750")
	}
}
