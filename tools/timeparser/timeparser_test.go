package timeparser_test

import (
	"testing"
	"time"

	"github.com/septivank/invoice-review/tools/timeparser"
)

func TestParseBillingDate_ISO(t *testing.T) {
	result, err := timeparser.ParseBillingDate("2025-03-01")
	if err != nil {
		t.Fatalf("Failed to parse date: %v", err)
	}

	expected := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseBillingDate_DayFirst(t *testing.T) {
	result, err := timeparser.ParseBillingDate("29/12/2025")
	if err != nil {
		t.Fatalf("Failed to parse date: %v", err)
	}

	expected := time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseBillingDate_LongMonth(t *testing.T) {
	result, err := timeparser.ParseBillingDate(" March 5, 2025 ")
	if err != nil {
		t.Fatalf("Failed to parse date: %v", err)
	}

	expected := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseBillingDate_RFC3339(t *testing.T) {
	result, err := timeparser.ParseBillingDate("2025-12-29T10:30:45Z")
	if err != nil {
		t.Fatalf("Failed to parse date: %v", err)
	}

	expected := time.Date(2025, 12, 29, 10, 30, 45, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseBillingDate_Invalid(t *testing.T) {
	_, err := timeparser.ParseBillingDate("last month")
	if err == nil {
		t.Error("Expected error for invalid date")
	}
}

func TestIsWithinTolerance_WithinRange(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	if !timeparser.IsWithinTolerance(start, end, 31) {
		t.Error("Expected period to be within tolerance")
	}
}

func TestIsWithinTolerance_OutsideRange(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if timeparser.IsWithinTolerance(start, end, 366) {
		t.Error("Expected period to be outside tolerance")
	}
}
