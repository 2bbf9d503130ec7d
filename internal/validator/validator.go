package validator

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/septivank/invoice-review/internal/extraction"
	"github.com/septivank/invoice-review/tools/timeparser"
)

// ValidationResult holds validation outcome
type ValidationResult struct {
	IsValid bool
	Reason  string
}

// Validator enforces the payload schema contract on reviewer edits
type Validator struct {
	maxBillingPeriodDays int
	validate             *validator.Validate
}

// NewValidator creates a new validator with the specified billing period limit
func NewValidator(maxBillingPeriodDays int) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("billing_date", validateBillingDate)

	return &Validator{
		maxBillingPeriodDays: maxBillingPeriodDays,
		validate:             v,
	}
}

// ValidatePayload validates a complete payload
func (v *Validator) ValidatePayload(p *extraction.Payload) ValidationResult {
	if p == nil {
		return invalid("payload is required")
	}
	if result := checkFinite(p); !result.IsValid {
		return result
	}
	if err := v.validate.Struct(p); err != nil {
		return invalid(describe(err))
	}
	return v.checkPeriod(p.BillingPeriod)
}

// ValidateEdit validates next as the replacement of prev. Field rules apply
// only to values the edit changes, so a payload accepted at intake can always
// be saved back with untouched fields left as they were.
func (v *Validator) ValidateEdit(prev, next *extraction.Payload) ValidationResult {
	if prev == nil {
		return v.ValidatePayload(next)
	}
	if next == nil {
		return invalid("payload is required")
	}
	if result := checkFinite(next); !result.IsValid {
		return result
	}

	if err := v.validate.Struct(changedFields(prev, next)); err != nil {
		return invalid(describe(err))
	}

	if sameString(prev.BillingPeriod.StartDate, next.BillingPeriod.StartDate) &&
		sameString(prev.BillingPeriod.EndDate, next.BillingPeriod.EndDate) {
		return ValidationResult{IsValid: true}
	}
	return v.checkPeriod(next.BillingPeriod)
}

// DecodePayload strictly decodes raw JSON. Field rules are left to
// ValidatePayload or ValidateEdit.
func (v *Validator) DecodePayload(raw []byte) (*extraction.Payload, ValidationResult) {
	p, err := extraction.Decode(raw)
	if err != nil {
		return nil, invalid(err.Error())
	}
	if result := checkFinite(p); !result.IsValid {
		return nil, result
	}
	return p, ValidationResult{IsValid: true}
}

func invalid(reason string) ValidationResult {
	return ValidationResult{IsValid: false, Reason: reason}
}

func checkFinite(p *extraction.Payload) ValidationResult {
	if math.IsNaN(p.Confidence) || math.IsInf(p.Confidence, 0) {
		return invalid("confidence must be a finite number")
	}
	if p.EnergyUsageKwh != nil && (math.IsNaN(*p.EnergyUsageKwh) || math.IsInf(*p.EnergyUsageKwh, 0)) {
		return invalid("energy_usage_kwh must be a finite number")
	}
	return ValidationResult{IsValid: true}
}

// checkPeriod runs the cross-field checks. A date that does not parse is
// reported by the billing_date rule when it is new, so it is skipped here.
func (v *Validator) checkPeriod(bp extraction.BillingPeriod) ValidationResult {
	if bp.StartDate == nil || bp.EndDate == nil {
		return ValidationResult{IsValid: true}
	}

	startTime, err := timeparser.ParseBillingDate(*bp.StartDate)
	if err != nil {
		return ValidationResult{IsValid: true}
	}
	endTime, err := timeparser.ParseBillingDate(*bp.EndDate)
	if err != nil {
		return ValidationResult{IsValid: true}
	}

	if endTime.Before(startTime) {
		return invalid("billing_period: end_date is before start_date")
	}
	if v.maxBillingPeriodDays > 0 && !timeparser.IsWithinTolerance(startTime, endTime, v.maxBillingPeriodDays) {
		return invalid(fmt.Sprintf("billing_period: longer than %d days", v.maxBillingPeriodDays))
	}
	return ValidationResult{IsValid: true}
}

// changedFields keeps the values of next that differ from prev. Unchanged
// optional fields become nil and an unchanged confidence becomes zero, which
// every rule accepts.
func changedFields(prev, next *extraction.Payload) *extraction.Payload {
	out := next.Clone()
	if sameFloat(prev.EnergyUsageKwh, next.EnergyUsageKwh) {
		out.EnergyUsageKwh = nil
	}
	if sameString(prev.BillingPeriod.StartDate, next.BillingPeriod.StartDate) {
		out.BillingPeriod.StartDate = nil
	}
	if sameString(prev.BillingPeriod.EndDate, next.BillingPeriod.EndDate) {
		out.BillingPeriod.EndDate = nil
	}
	if sameString(prev.UtilityProvider, next.UtilityProvider) {
		out.UtilityProvider = nil
	}
	if sameString(prev.Country, next.Country) {
		out.Country = nil
	}
	if sameString(prev.RawTextSnippet, next.RawTextSnippet) {
		out.RawTextSnippet = nil
	}
	if prev.Confidence == next.Confidence {
		out.Confidence = 0
	}
	return out
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func validateBillingDate(fl validator.FieldLevel) bool {
	_, err := timeparser.ParseBillingDate(fl.Field().String())
	return err == nil
}

// describe renders validator field errors as "field: rule" pairs
func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.TrimPrefix(fe.Namespace(), "Payload.")
		switch fe.Tag() {
		case "billing_date":
			parts = append(parts, fmt.Sprintf("%s: unrecognised date %q", field, fe.Value()))
		case "gte", "lte", "max":
			parts = append(parts, fmt.Sprintf("%s: must satisfy %s=%s", field, fe.Tag(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
