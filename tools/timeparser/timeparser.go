package timeparser

import (
	"fmt"
	"strings"
	"time"
)

// ParseBillingDate attempts to parse an invoice billing date with multiple formats
func ParseBillingDate(dateStr string) (time.Time, error) {
	formats := []string{
		"2006-01-02",      // YYYY-MM-DD
		"02/01/2006",      // DD/MM/YYYY
		"02.01.2006",      // DD.MM.YYYY
		"2 January 2006",  // 5 March 2025
		"January 2, 2006", // March 5, 2025
		"Jan 2, 2006",     // Mar 5, 2025
		"02 Jan 2006",     // 05 Mar 2025
		time.RFC3339,      // Standard RFC3339
	}

	trimmed := strings.TrimSpace(dateStr)

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, trimmed)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse billing date '%s': %w", dateStr, lastErr)
}

// IsWithinTolerance checks if the period between start and end is no longer than toleranceDays
func IsWithinTolerance(start, end time.Time, toleranceDays int) bool {
	diff := end.Sub(start)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceDays)*24*time.Hour
}
