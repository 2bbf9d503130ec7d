package extraction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_FullDocument(t *testing.T) {
	raw := `{
		"energy_usage_kwh": 1234.5,
		"billing_period": {"start_date": "2025-01-01", "end_date": "2025-01-31"},
		"utility_provider": "Vattenfall",
		"country": "DE",
		"raw_text_snippet": "Total consumption 1,234.5 kWh",
		"confidence": 92
	}`

	p, err := Decode([]byte(raw))
	require.NoError(t, err)

	require.NotNil(t, p.EnergyUsageKwh)
	assert.Equal(t, 1234.5, *p.EnergyUsageKwh)
	assert.Equal(t, "2025-01-01", *p.BillingPeriod.StartDate)
	assert.Equal(t, "Vattenfall", *p.UtilityProvider)
	assert.Equal(t, 92.0, p.Confidence)
}

func TestDecode_NullsAreAbsent(t *testing.T) {
	p, err := Decode([]byte(`{"energy_usage_kwh": null, "billing_period": null, "country": null, "confidence": 40}`))
	require.NoError(t, err)

	assert.Nil(t, p.EnergyUsageKwh)
	assert.Nil(t, p.BillingPeriod.StartDate)
	assert.Nil(t, p.Country)
	assert.Nil(t, p.UtilityProvider)
}

func TestDecode_MissingConfidence(t *testing.T) {
	_, err := Decode([]byte(`{"country": "DE"}`))
	assert.True(t, errors.Is(err, ErrMissingConfidence))

	_, err = Decode([]byte(`{"confidence": null}`))
	assert.True(t, errors.Is(err, ErrMissingConfidence))
}

func TestDecode_ConfidenceMustBeNumber(t *testing.T) {
	_, err := Decode([]byte(`{"confidence": "high"}`))
	assert.Error(t, err)
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode([]byte(`{"confidence": 80, "amount_due": 12}`))
	assert.Error(t, err)
}

func TestDecode_TrailingData(t *testing.T) {
	_, err := Decode([]byte(`{"confidence": 80} {"confidence": 81}`))
	assert.Error(t, err)
}

func TestClone_IsDeep(t *testing.T) {
	kwh := 10.0
	country := "FR"
	p := &Payload{EnergyUsageKwh: &kwh, Country: &country, Confidence: 75}

	c := p.Clone()
	*c.EnergyUsageKwh = 99
	*c.Country = "IT"

	assert.Equal(t, 10.0, *p.EnergyUsageKwh)
	assert.Equal(t, "FR", *p.Country)
	assert.Nil(t, (*Payload)(nil).Clone())
}
