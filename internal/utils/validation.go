package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the on-the-wire format for createdDate and dueDate.
const DateLayout = "2006-01-02"

// TimeSlotLayout is the on-the-wire format for timeSlot.
const TimeSlotLayout = "15:04"

// NormalizeText trims task text and rejects the empty result.
func NormalizeText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyText()
	}
	return trimmed, nil
}

// ValidatePriority accepts "", low, medium and high (case-insensitive) and
// returns the lowercased value.
func ValidatePriority(priority string) (string, error) {
	p := strings.ToLower(strings.TrimSpace(priority))
	switch p {
	case "", "low", "medium", "high":
		return p, nil
	}
	return "", ErrInvalidPriority(priority)
}

// ValidateTimeSlot accepts "" or a 24-hour HH:MM value.
func ValidateTimeSlot(slot string) (string, error) {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return "", nil
	}
	if _, err := time.Parse(TimeSlotLayout, slot); err != nil {
		return "", ErrInvalidTimeSlot(slot)
	}
	return slot, nil
}

// relativePattern matches relative date formats like +7d, -3d, +2w, +1m
var relativePattern = regexp.MustCompile(`^([+-])(\d+)([dwm])$`)

// parseRelativeDate parses "today", "tomorrow", "yesterday", "+7d", "-3d", "+2w", "+1m".
// Returns nil, nil when the string is not a relative date.
func parseRelativeDate(dateStr string, now time.Time) (*time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

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
		return nil, nil
	}

	num, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, ErrInvalidDate(dateStr)
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

// ParseDueDate turns a --due flag value into the YYYY-MM-DD wire form.
// Relative forms (today, tomorrow, +Nd, +Nw, +Nm) resolve against now.
// An empty value stays empty.
func ParseDueDate(dateStr string, now time.Time) (string, error) {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return "", nil
	}

	t, err := parseRelativeDate(dateStr, now)
	if err != nil {
		return "", err
	}
	if t != nil {
		return t.Format(DateLayout), nil
	}

	parsed, err := time.ParseInLocation(DateLayout, dateStr, time.Local)
	if err != nil {
		return "", ErrInvalidDate(dateStr)
	}
	return parsed.Format(DateLayout), nil
}
