package cliutil

import (
	"runtime"
	"testing"
)

func TestParseWorkers(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"4", 4, false},
		{" 1 ", 1, false},
		{"AUTO", runtime.NumCPU(), false},
		{"", 0, true},
		{"0", 0, true},
		{"-2", 0, true},
		{"many", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseWorkers(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseWorkers(%q) err=%v, wantErr=%v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("ParseWorkers(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
