package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"tripsync/pkg/logger"
	"tripsync/pkg/model"

	"github.com/go-playground/validator/v10"
)

var idempotencyKeyRegex = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

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

// Details renders the errors as a field to message map for API responses.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

type TripValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewTripValidator(log *logger.Logger) *TripValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	if err := v.RegisterValidation("idempotency_key", validateIdempotencyKey); err != nil {
		log.Fatal("Failed to register 'idempotency_key' validator",
			"error", err,
		)
	}

	return &TripValidator{
		validate: v,
		logger:   log,
	}
}

func validateIdempotencyKey(fl validator.FieldLevel) bool {
	return idempotencyKeyRegex.MatchString(fl.Field().String())
}

func (v *TripValidator) ValidateAccept(cmd *model.AcceptTripCommand) error {
	return v.validateStruct(cmd)
}

func (v *TripValidator) ValidateComplete(cmd *model.CompleteTripCommand) error {
	return v.validateStruct(cmd)
}

func (v *TripValidator) ValidateAdvance(cmd *model.AdvanceTripCommand) error {
	return v.validateStruct(cmd)
}

func (v *TripValidator) validateStruct(cmd any) error {
	if err := v.validate.Struct(cmd); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *TripValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "gt":
			message = fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
		case "gte":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "lte":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "idempotency_key":
			message = fmt.Sprintf("%s may only contain letters, digits and . _ : -", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
