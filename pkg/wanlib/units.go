package wanlib

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Size units used by rate limits and the chunk size.
const (
	B  int64 = 1
	KB       = 1024 * B
	MB       = 1024 * KB
	GB       = 1024 * MB
)

const (
	DEF_CHUNK_SIZE        = 8 * KB
	DEF_CONNECT_TIMEOUT   = 30 * time.Second
	DEF_READ_TIMEOUT      = 60 * time.Second
	DEF_PROGRESS_INTERVAL = 500 * time.Millisecond
	DEF_RATE_WINDOW       = time.Second
	DEF_USER_AGENT        = "wanpull/1.0"

	// fallback file name when neither headers nor url provide one.
	DEF_FILE_NAME = "downloaded_file"
)

// ParseRate parses a human rate such as "2MB", "512kb", "1.5 GB" or "100000"
// into bytes per second. An empty string or "0" means unlimited (0).
func ParseRate(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "0" {
		return 0, nil
	}
	s = strings.TrimSuffix(s, "/S")
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	numStr, unit := s, ""
	if i >= 0 {
		numStr, unit = s[:i], strings.TrimSpace(s[i:])
	}
	if numStr == "" {
		return 0, fmt.Errorf("invalid rate %q: no numeric value", s)
	}
	num, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	var mul int64
	switch unit {
	case "", "B":
		mul = B
	case "K", "KB":
		mul = KB
	case "M", "MB":
		mul = MB
	case "G", "GB":
		mul = GB
	default:
		return 0, fmt.Errorf("invalid rate %q: unknown unit %q", s, unit)
	}
	return int64(num * float64(mul)), nil
}

// FormatRate renders a rate limit for log lines, "unlimited" for zero.
func FormatRate(bps int64) string {
	switch {
	case bps <= 0:
		return "unlimited"
	case bps >= GB:
		return fmt.Sprintf("%.2f GB/s", float64(bps)/float64(GB))
	case bps >= MB:
		return fmt.Sprintf("%.2f MB/s", float64(bps)/float64(MB))
	case bps >= KB:
		return fmt.Sprintf("%.2f KB/s", float64(bps)/float64(KB))
	}
	return fmt.Sprintf("%d B/s", bps)
}
