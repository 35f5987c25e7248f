package reservation

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"time"
)

var numberRe = regexp.MustCompile(`^GP-(\d{8})-(\d{4})$`)

// ParsedNumber holds the structured data parsed from a reservation number.
type ParsedNumber struct {
	Date time.Time
	Seq  int
}

// FormatNumber builds the human-readable reservation number for a date,
// e.g. "GP-20250610-0042".
func FormatNumber(date time.Time, seq int) string {
	return fmt.Sprintf("GP-%s-%04d", date.Format("20060102"), seq%10000)
}

// GenerateNumber returns a reservation number for the date with a random
// four-digit suffix.
func GenerateNumber(date time.Time) string {
	return FormatNumber(date, rand.Intn(10000))
}

// ParseNumber extracts the date and sequence from a reservation number string.
func ParseNumber(raw string) (ParsedNumber, error) {
	m := numberRe.FindStringSubmatch(raw)
	if m == nil {
		return ParsedNumber{}, fmt.Errorf("unable to parse reservation number: %q", raw)
	}

	date, err := time.Parse("20060102", m[1])
	if err != nil {
		return ParsedNumber{}, fmt.Errorf("invalid date in reservation number %q: %w", raw, err)
	}

	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return ParsedNumber{}, fmt.Errorf("invalid sequence in reservation number %q: %w", raw, err)
	}

	return ParsedNumber{Date: date, Seq: seq}, nil
}
