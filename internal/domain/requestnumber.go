package domain

import (
	"fmt"
	"regexp"
	"strconv"
)

var requestNumberRe = regexp.MustCompile(`^CR-(\d{4})-(\d{5,})$`)

// FormatRequestNumber renders CR-<year>-<5-digit sequence>.
func FormatRequestNumber(year, seq int) string {
	return fmt.Sprintf("CR-%04d-%05d", year, seq)
}

// ParseRequestNumber splits a request number into year and sequence.
func ParseRequestNumber(s string) (year, seq int, ok bool) {
	m := requestNumberRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	year, _ = strconv.Atoi(m[1])
	seq, _ = strconv.Atoi(m[2])
	return year, seq, true
}
