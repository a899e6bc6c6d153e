package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError lists every rule a message violated.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + strings.Join(e.Reasons, "; ")
}

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	// Registration only fails for empty tags or nil functions.
	_ = v.RegisterValidation("secureurl", secureURL)

	return &Validator{validate: v}
}

// Validate checks a decoded message. It never modifies msg.
func (v *Validator) Validate(msg Message) error {
	err := v.validate.Struct(msg)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Reasons: []string{err.Error()}}
	}

	reasons := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		reasons = append(reasons, describe(fe))
	}
	return &ValidationError{Reasons: reasons}
}

// ValidateJSON checks a serialized message. Unknown fields anywhere in the
// document are rejected.
func (v *Validator) ValidateJSON(raw []byte) error {
	msg, err := decodeStrict(raw)
	if err != nil {
		return &ValidationError{Reasons: []string{err.Error()}}
	}
	return v.Validate(msg)
}

// ParseTemplate decodes a stored template with the same strictness the
// validator applies.
func ParseTemplate(raw string) (Message, error) {
	msg, err := decodeStrict([]byte(raw))
	if err != nil {
		return Message{}, fmt.Errorf("failed to parse message template: %w", err)
	}
	return msg, nil
}

func decodeStrict(raw []byte) (Message, error) {
	var msg Message

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Message{}, fmt.Errorf("unexpected data after message document")
	}

	return msg, nil
}

// secureURL accepts https links and the one placeholder named by the tag
// parameter, so each URL slot only takes the token rendered into it.
func secureURL(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if strings.HasPrefix(value, "https://") {
		return true
	}
	return fl.Param() != "" && value == Token(fl.Param())
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Message.")

	switch fe.Tag() {
	case "max":
		return fmt.Sprintf("%s exceeds maximum of %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s is below minimum of %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must contain exactly %s element(s)", field, fe.Param())
	case "eq":
		return fmt.Sprintf("%s must equal %s", field, fe.Param())
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "secureurl":
		if fe.Param() == "" {
			return fmt.Sprintf("%s must start with https://", field)
		}
		return fmt.Sprintf("%s must start with https:// or be %s", field, Token(fe.Param()))
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
