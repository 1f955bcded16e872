package domain

import (
	"regexp"
	"strings"
)

var (
	reParenTail = regexp.MustCompile(`\(.*$`)
	reParcels   = regexp.MustCompile(`\d+필지`)
	reSpaces    = regexp.MustCompile(`\s+`)
)

// CleanAddress strips registry noise that makes geocoders miss: a trailing
// parenthesised note, parcel counts and everything after the first comma.
func CleanAddress(raw string) string {
	s := reParenTail.ReplaceAllString(raw, "")
	s = reParcels.ReplaceAllString(s, "")
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

// ParseRegionPair takes the first two words of an address as its
// (province, district) pair.
func ParseRegionPair(address string) (string, string, bool) {
	fields := strings.Fields(address)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}
