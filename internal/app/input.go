package app

import (
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// parseDate reads a YYYY-MM-DD field. Empty values return nil unless required.
func parseDate(field, value string, mandatory bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if mandatory {
			return nil, required(field)
		}
		return nil, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, invalid(field, "must be a date in YYYY-MM-DD format")
	}
	return &t, nil
}

// optionalID trims an optional reference; blank becomes nil.
func optionalID(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func blank(value string) bool { return strings.TrimSpace(value) == "" }

func maxLen(field, value string, n int) error {
	if len(value) > n {
		return invalid(field, "must be at most "+strconv.Itoa(n)+" characters")
	}
	return nil
}

// weekdays counts Monday-to-Friday days in [start, end].
func weekdays(start, end time.Time) int {
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			days++
		}
	}
	return days
}

func ptr[T any](v T) *T { return &v }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
