package domain

import (
	"fmt"
	"study-relay/errors"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MaxContentLength is the maximum length of a chat message, in characters.
const MaxContentLength = 500

var validate = newValidator()

// newValidator adds the "utf8" tag: stored text must be valid UTF-8.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("utf8", func(fl validator.FieldLevel) bool {
		return utf8.ValidString(fl.Field().String())
	})
	return v
}

func (c PostMessageCommand) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrValidationFailed, err)
	}
	return nil
}

func (r JoinRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrValidationFailed, err)
	}
	return nil
}

// Validate checks the envelope only, the payload stays opaque.
func (e SignalEnvelope) Validate() error {
	switch {
	case !e.Type.Valid():
		return fmt.Errorf("%w: unknown signal type %q", errors.ErrValidationFailed, e.Type)
	case e.ReceiverID == "":
		return fmt.Errorf("%w: receiverId is required", errors.ErrValidationFailed)
	case len(e.Payload) == 0:
		return fmt.Errorf("%w: payload is required", errors.ErrValidationFailed)
	}
	return nil
}
