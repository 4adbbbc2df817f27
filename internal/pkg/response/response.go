package response

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type errorBody struct {
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// Data writes {"data": v} with the given status.
func Data(c *fiber.Ctx, status int, v interface{}) error {
	return c.Status(status).JSON(fiber.Map{"data": v})
}

// Error writes the error envelope. Errors that are not AppErrors become a
// generic 500 and are logged.
func Error(c *fiber.Ctx, err error) error {
	appErr, ok := AsAppError(err)
	if !ok {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		appErr = ErrInternal("", err)
	} else if appErr.Status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), appErr)
	}
	return c.Status(appErr.Status).JSON(fiber.Map{"error": errorBody{
		Message: appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	}})
}

// ValidationDetails flattens validator errors into field/rule pairs.
func ValidationDetails(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// FromValidation maps a validator error to a VALIDATION_ERROR AppError.
func FromValidation(err error) *AppError {
	return ErrValidation(ValidationDetails(err))
}
