package tasks

import (
	"errors"
	"fmt"
)

// Messages reported in ValidationError.
const (
	MsgInvalidRule        = "Invalid Timing Rule."
	MsgMissingStart       = "Cannot determine the start date."
	MsgEndBeforeStart     = "The end date cannot be before the start date."
	MsgStartAfterEnd      = "The start date cannot be after the end date."
	MsgTargetDoesNotExist = "The target content type does not exist."
	MsgTargetNotAllowed   = "The target content type is not allowed."
	MsgParentDoesNotExist = "The parent task does not exist."
	MsgLocationNotFound   = "The location does not exist."
	MsgInvalidStatus      = "Invalid status."
	MsgMissingName        = "This field is required."
)

// ValidationError reports input that was rejected before anything was stored.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
