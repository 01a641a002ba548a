package generations

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// MaxPromptLength is the longest prompt accepted, counted in characters.
const MaxPromptLength = 500

// Request is the body of POST /api/generate.
type Request struct {
	Prompt string `json:"prompt" validate:"required,max=500"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the request and returns a *ValidationError describing the
// first problem found.
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		switch fieldErrs[0].Tag() {
		case "required":
			return &ValidationError{Message: "Prompt is required"}
		case "max":
			return &ValidationError{Message: "Prompt must be less than 500 characters"}
		}
	}
	return &ValidationError{Message: "Invalid request"}
}
