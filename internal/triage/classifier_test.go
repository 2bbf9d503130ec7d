package triage_test

import (
	"math"
	"testing"

	"github.com/septivank/invoice-review/internal/triage"
)

func TestClassify_Boundaries(t *testing.T) {
	cases := []struct {
		confidence float64
		want       triage.Tier
	}{
		{90, triage.High},
		{100, triage.High},
		{89.9, triage.Medium},
		{70, triage.Medium},
		{69.9, triage.Low},
		{0, triage.Low},
		{-5, triage.Low},
		{150, triage.High},
		{math.Inf(-1), triage.Low},
		{math.Inf(1), triage.High},
		{math.NaN(), triage.Low},
	}

	for _, tc := range cases {
		if got := triage.Classify(tc.confidence); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.confidence, got, tc.want)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		if triage.Classify(85) != triage.Medium {
			t.Fatal("Expected repeated classification to be stable")
		}
	}
}

func TestClassifier_CustomThresholds(t *testing.T) {
	c := triage.NewClassifier(95, 50)

	if c.Classify(94) != triage.Medium {
		t.Error("Expected 94 to be medium with a 95 high threshold")
	}
	if c.Classify(50) != triage.Medium {
		t.Error("Expected 50 to be medium with a 50 medium threshold")
	}
	if c.Classify(49.99) != triage.Low {
		t.Error("Expected 49.99 to be low")
	}
}

func TestTier_Label(t *testing.T) {
	if triage.High.Label() != "auto-approve ready" {
		t.Errorf("unexpected label %q", triage.High.Label())
	}
	if triage.Medium.Label() != "needs review" {
		t.Errorf("unexpected label %q", triage.Medium.Label())
	}
	if triage.Low.Label() != "low confidence" {
		t.Errorf("unexpected label %q", triage.Low.Label())
	}
}
