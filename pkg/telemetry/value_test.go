package telemetry

import (
	"testing"
)

func TestNumericValue(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
		ok   bool
	}{
		{"float64", 3.7, 3.7, true},
		{"float32", float32(2.5), 2.5, true},
		{"int", 42, 42, true},
		{"int64", int64(-7), -7, true},
		{"uint16", uint16(9), 9, true},
		{"tagged", Tagged{Tag: "c1", Value: 1.5}, 1.5, true},
		{"tagged pointer", &Tagged{Tag: "c1", Value: 1.5}, 1.5, true},
		{"string", "3.7", 0, false},
		{"bool", true, 0, false},
		{"nil", nil, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NumericValue(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Errorf("NumericValue(%v) = (%v, %v), want (%v, %v)", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestValuesEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"equal floats", 1.5, 1.5, true},
		{"int vs float", 2, 2.0, true},
		{"different numbers", 1.0, 1.1, false},
		{"equal strings", "on", "on", true},
		{"different strings", "on", "off", false},
		{"equal bools", true, true, true},
		{"tagged equal", Tagged{Tag: "a", Value: 1}, Tagged{Tag: "a", Value: 1}, true},
		{"mixed kinds", "1", 1.0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValuesEqual(tc.a, tc.b); got != tc.want {
				t.Errorf("ValuesEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}
