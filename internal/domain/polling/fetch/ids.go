package fetch

import "strings"

// CompareIDs orders numeric platform ids without parsing them. Ids are
// decimal strings that may exceed 64 bits, so a longer id is larger.
func CompareIDs(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// MaxID returns the larger of two ids; an empty id is smaller than any other
func MaxID(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if CompareIDs(b, a) > 0 {
		return b
	}
	return a
}
