package rate

import (
	"strconv"
	"strings"
	"time"
)

// extractInts returns all integer substrings contained in s. Any non-digit
// characters are treated as separators. Missing or unparsable values result in
// an empty slice.
func extractInts(s string) []int64 {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r < '0' || r > '9'
	})
	nums := make([]int64, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			nums = append(nums, n)
		}
	}
	return nums
}

// BannedUntil extracts the ban expiry from messages such as
// "Way too many requests; IP banned until 1507776000000." The first number
// that looks like a millisecond timestamp wins.
func BannedUntil(msg string) (time.Time, bool) {
	for _, n := range extractInts(msg) {
		// 2001-09-09 in ms; anything smaller is a code or a count
		if n >= 1_000_000_000_000 {
			return time.UnixMilli(n).UTC(), true
		}
	}
	return time.Time{}, false
}
