package validator

import (
	"errors"
	"fmt"
	"reflect"
	"slotkeeper/internal/reservations/pool"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// BookingValidator checks request shape and pool membership. Availability is
// the ledger's job.
type BookingValidator struct {
	validate *validator.Validate
	pool     pool.Pool
	logger   *logger.Logger
}

func NewBookingValidator(p pool.Pool, log *logger.Logger) *BookingValidator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)

	if err := v.RegisterValidation("in_pool", func(fl validator.FieldLevel) bool {
		return p.IsValid(int(fl.Field().Int()))
	}); err != nil {
		log.Fatal("Failed to register 'in_pool' validator",
			"error", err,
		)
	}

	log.Info("Booking validator initialized successfully", "pool_size", p.Size())

	return &BookingValidator{
		validate: v,
		pool:     p,
		logger:   log,
	}
}

func (v *BookingValidator) Validate(req *model.BookingRequest) error {
	if req == nil {
		return ValidationErrors{{Field: "body", Message: "request body is required"}}
	}

	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	if err := v.validate.Var(req.Unit, "in_pool"); err != nil {
		return ValidationErrors{
			ValidationError{
				Field:   "unit",
				Message: fmt.Sprintf("unit must be between 1 and %d", v.pool.Size()),
			},
		}
	}

	return nil
}

// ValidateWindow is used by availability queries, which carry no unit.
func (v *BookingValidator) ValidateWindow(w model.TimeWindow) error {
	var errs ValidationErrors
	if w.Start.IsZero() {
		errs = append(errs, ValidationError{Field: "start", Message: "start is required"})
	}
	if w.End.IsZero() {
		errs = append(errs, ValidationError{Field: "end", Message: "end is required"})
	}
	if len(errs) == 0 && !w.Valid() {
		errs = append(errs, ValidationError{Field: "end", Message: "end must be after start"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), strings.ToLower(err.Param()))
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}
