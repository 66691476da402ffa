package core

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"inkwell/internal/types"
)

// Validator wraps go-playground/validator and translates validation failures
// into the shared AppError shape so handlers get uniform 400 responses.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator with the domain-specific tags registered.
func NewValidator() *Validator {
	v := validator.New()

	// plan_id: value must be one of the known tiers.
	_ = v.RegisterValidation("plan_id", func(fl validator.FieldLevel) bool {
		candidate := types.PlanID(fl.Field().String())
		for _, p := range types.AllPlans {
			if candidate == p {
				return true
			}
		}
		return false
	})

	// billing_interval: month or year.
	_ = v.RegisterValidation("billing_interval", func(fl validator.FieldLevel) bool {
		i := types.BillingInterval(fl.Field().String())
		return i == types.IntervalMonth || i == types.IntervalYear
	})

	return &Validator{v: v}
}

// ValidateStruct validates the given struct against its `validate` tags and
// returns a *types.AppError describing the first failures, or nil.
func (va *Validator) ValidateStruct(s any) error {
	err := va.v.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		fields = append(fields, field)
		details[field] = "failed rule: " + fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"invalid request: "+strings.Join(fields, ", "),
		nil,
		details,
	)
}
