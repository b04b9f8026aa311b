package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// emailPattern matches the same address shape the server accepts.
var emailPattern = regexp.MustCompile(`^[\w\.-]+@[\w\.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks an email address at the UI boundary, before any
// network call.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid email address: %s", email)
	}
	return nil
}

// ValidatePassword checks the minimum password length the server enforces.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	return nil
}

// ValidateName checks an account name at the UI boundary.
func ValidateName(name string) error {
	if len(strings.TrimSpace(name)) < 2 {
		return errors.New("name must be at least 2 characters")
	}
	return nil
}

// relativePattern matches relative date formats like +7d, -3d, +2w, +1m
var relativePattern = regexp.MustCompile(`^([+-])(\d+)([dwm])$`)

// parseRelativeDate parses relative date strings like "today", "tomorrow",
// "+7d", "+2w", "+1m". Returns nil, nil if the string is not a relative
// date format.
func parseRelativeDate(dateStr string) (*time.Time, error) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	lower := strings.ToLower(dateStr)

	switch lower {
	case "today":
		return &today, nil
	case "tomorrow":
		t := today.AddDate(0, 0, 1)
		return &t, nil
	case "yesterday":
		t := today.AddDate(0, 0, -1)
		return &t, nil
	}

	matches := relativePattern.FindStringSubmatch(lower)
	if matches == nil {
		return nil, nil // Not a relative format
	}

	num, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, fmt.Errorf("invalid date: %s", dateStr)
	}
	if matches[1] == "-" {
		num = -num
	}

	var result time.Time
	switch matches[3] {
	case "d":
		result = today.AddDate(0, 0, num)
	case "w":
		result = today.AddDate(0, 0, num*7)
	case "m":
		result = today.AddDate(0, num, 0)
	}

	return &result, nil
}

// ParseDateFlag parses a due-date flag supporting both relative and
// absolute formats. Supported relative formats: today, tomorrow, yesterday,
// +Nd, -Nd, +Nw, +Nm. Absolute format: YYYY-MM-DD.
// Returns nil, nil for the empty string (no date).
func ParseDateFlag(dateStr string) (*time.Time, error) {
	if dateStr == "" {
		return nil, nil
	}

	t, err := parseRelativeDate(dateStr)
	if err != nil {
		return nil, err
	}
	if t != nil {
		return t, nil
	}

	parsed, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD or a relative form like +3d", dateStr)
	}

	return &parsed, nil
}
