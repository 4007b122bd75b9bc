package guildsync

import (
	"fmt"
	"time"
)

const (
	// AmzDateFormat is the layout of the x-amz-date header (YYYYMMDD'T'HHMMSS'Z').
	AmzDateFormat = "20060102T150405Z"
	// ScopeDateFormat is the layout of the date component of a credential scope.
	ScopeDateFormat = "20060102"
)

// AmzDate formats t for the x-amz-date header. The result is always UTC,
// whatever location t carries.
func AmzDate(t time.Time) string {
	return t.UTC().Format(AmzDateFormat)
}

// ParseAmzDate parses an x-amz-date value.
func ParseAmzDate(s string) (time.Time, error) {
	t, err := time.Parse(AmzDateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse amz date %q: %w", s, ErrInvalidInput)
	}
	return t, nil
}

// scopeDate returns the date prefix of an x-amz-date value.
func scopeDate(amzDate string) string {
	if len(amzDate) < len(ScopeDateFormat) {
		return amzDate
	}
	return amzDate[:len(ScopeDateFormat)]
}
