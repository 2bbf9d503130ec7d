package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMissingConfidence is returned when a document has no numeric confidence
var ErrMissingConfidence = errors.New("confidence is required and must be a number")

// document mirrors Payload with a nullable confidence so that a missing value
// can be told apart from zero.
type document struct {
	EnergyUsageKwh  *float64       `json:"energy_usage_kwh"`
	BillingPeriod   *BillingPeriod `json:"billing_period"`
	UtilityProvider *string        `json:"utility_provider"`
	Country         *string        `json:"country"`
	RawTextSnippet  *string        `json:"raw_text_snippet"`
	Confidence      *float64       `json:"confidence"`
}

// Decode parses a JSON payload strictly: unknown fields and trailing data
// are rejected, and confidence must be present as a JSON number.
func Decode(data []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("malformed payload: unexpected data after JSON object")
	}

	if doc.Confidence == nil {
		return nil, ErrMissingConfidence
	}

	payload := &Payload{
		EnergyUsageKwh:  doc.EnergyUsageKwh,
		UtilityProvider: doc.UtilityProvider,
		Country:         doc.Country,
		RawTextSnippet:  doc.RawTextSnippet,
		Confidence:      *doc.Confidence,
	}
	if doc.BillingPeriod != nil {
		payload.BillingPeriod = *doc.BillingPeriod
	}

	return payload, nil
}
