// Package extraction holds the structured invoice fields produced by the
// upstream extraction service and the client used to reach that service.
package extraction

import "fmt"

// BillingPeriod is the invoiced date range as printed on the document
type BillingPeriod struct {
	StartDate *string `json:"start_date" validate:"omitempty,billing_date"`
	EndDate   *string `json:"end_date" validate:"omitempty,billing_date"`
}

// Payload is the structured field set extracted from one invoice.
// Nil fields mean absent or unknown; Confidence is always present.
type Payload struct {
	EnergyUsageKwh  *float64      `json:"energy_usage_kwh" validate:"omitempty,gte=0"`
	BillingPeriod   BillingPeriod `json:"billing_period"`
	UtilityProvider *string       `json:"utility_provider" validate:"omitempty,max=256"`
	Country         *string       `json:"country" validate:"omitempty,max=128"`
	RawTextSnippet  *string       `json:"raw_text_snippet" validate:"omitempty,max=8192"`
	Confidence      float64       `json:"confidence" validate:"gte=0,lte=100"`
}

// Clone returns a deep copy that shares no pointers with p
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	return &Payload{
		EnergyUsageKwh: cloneFloat(p.EnergyUsageKwh),
		BillingPeriod: BillingPeriod{
			StartDate: cloneString(p.BillingPeriod.StartDate),
			EndDate:   cloneString(p.BillingPeriod.EndDate),
		},
		UtilityProvider: cloneString(p.UtilityProvider),
		Country:         cloneString(p.Country),
		RawTextSnippet:  cloneString(p.RawTextSnippet),
		Confidence:      p.Confidence,
	}
}

// ConfidenceDetail renders the confidence the way audit events record it
func (p *Payload) ConfidenceDetail() string {
	return fmt.Sprintf("confidence=%g", p.Confidence)
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
