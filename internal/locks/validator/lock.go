package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"opsline/pkg/logger"
	"opsline/pkg/model"

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

var resourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

type LockValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewLockValidator(log *logger.Logger) *LockValidator {
	v := validator.New()

	if err := v.RegisterValidation("resource_id", validateResourceID); err != nil {
		log.Fatal("Failed to register 'resource_id' validator", "error", err)
	}
	if err := v.RegisterValidation("resource_type", validateResourceType); err != nil {
		log.Fatal("Failed to register 'resource_type' validator", "error", err)
	}

	return &LockValidator{
		validate: v,
		logger:   log,
	}
}

func validateResourceID(fl validator.FieldLevel) bool {
	return resourceIDPattern.MatchString(fl.Field().String())
}

func validateResourceType(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case model.ResourceTypeInternalOrder, model.ResourceTypeCustomerOrder:
		return true
	}
	return false
}

func (v *LockValidator) ValidateAcquire(req *model.AcquireLockRequest) error {
	return v.check(req)
}

func (v *LockValidator) ValidateRenew(req *model.RenewLockRequest) error {
	return v.check(req)
}

func (v *LockValidator) ValidateRelease(req *model.ReleaseLockRequest) error {
	return v.check(req)
}

// ValidateResourceID applies the resource_id rule to a path-derived id, which
// never passes through struct validation.
func (v *LockValidator) ValidateResourceID(resourceID string) error {
	if !resourceIDPattern.MatchString(resourceID) {
		return errors.New("resource_id must be 1-128 characters from [A-Za-z0-9_.:-]")
	}
	return nil
}

func (v *LockValidator) ValidateResourceType(resourceType string) error {
	switch resourceType {
	case model.ResourceTypeInternalOrder, model.ResourceTypeCustomerOrder:
		return nil
	}
	return errors.New("resource_type must be a known resource type")
}

func (v *LockValidator) check(req any) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *LockValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "resource_id":
			message = "resource_id must be 1-128 characters from [A-Za-z0-9_.:-]"
		case "resource_type":
			message = "resource_type must be a known resource type"
		case "uuid4":
			message = fmt.Sprintf("%s must be a valid UUIDv4", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
