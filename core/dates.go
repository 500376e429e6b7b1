package core

import (
	"regexp"
	"time"
)

// xsd:date and xsd:dateTime as the service emits them: 2024-01-15,
// 2024-01-15T10:30:00.000Z, 2024-01-15T10:30:00+05:30.
var dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}(T\d{2}:\d{2}:\d{2}(\.\d{1,9})?(Z|[+-]\d{2}:?\d{2})?)?$`)

// IsDateTimeString checks if a string looks like an xsd:date or xsd:dateTime value.
func IsDateTimeString(value string) bool {
	return dateTimePattern.MatchString(value)
}

// ParseDateTime parses an xsd:date or xsd:dateTime value to time.Time.
// Values without a zone are taken as UTC.
func ParseDateTime(value string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z0700",
		"2006-01-02T15:04:05",
		"2006-01-02",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, &time.ParseError{Value: value, Message: "not a valid xsd:dateTime"}
}

// FormatDateTime renders t the way the service expects xsd:dateTime input.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
