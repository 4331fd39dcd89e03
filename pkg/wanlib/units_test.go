package wanlib

import "testing"

func TestParseRate(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"1000000", 1000000, false},
		{"512KB", 512 * KB, false},
		{"2mb", 2 * MB, false},
		{"2 MB", 2 * MB, false},
		{"1.5GB", int64(1.5 * float64(GB)), false},
		{"10K", 10 * KB, false},
		{"1MB/s", MB, false},
		{"abc", 0, true},
		{"5TB", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseRate(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatRate(t *testing.T) {
	if got := FormatRate(0); got != "unlimited" {
		t.Fatalf("FormatRate(0) = %q", got)
	}
	if got := FormatRate(2 * MB); got != "2.00 MB/s" {
		t.Fatalf("FormatRate(2MB) = %q", got)
	}
	if got := FormatRate(100); got != "100 B/s" {
		t.Fatalf("FormatRate(100) = %q", got)
	}
}
