package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one rejected request field
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// FromBindingError converts gin binding failures into a 400 AppError.
// validator errors become per-field details; malformed JSON is reported as-is.
func FromBindingError(err error) *AppError {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		names := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{
				Field: lowerFirst(fe.Field()),
				Rule:  fe.Tag(),
				Param: fe.Param(),
			})
			names = append(names, lowerFirst(fe.Field()))
		}
		return BadRequestWithDetails("VALIDATION_ERROR",
			fmt.Sprintf("Invalid or missing fields: %s", strings.Join(names, ", ")), fields)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case stderrors.Is(err, io.EOF):
		return NewBadRequestError("INVALID_BODY", "Request body is required")
	case stderrors.As(err, &syntaxErr):
		return NewBadRequestError("INVALID_BODY", "Request body is not valid JSON")
	case stderrors.As(err, &typeErr):
		return BadRequestWithDetails("INVALID_BODY",
			fmt.Sprintf("Field %s has the wrong type", typeErr.Field), typeErr.Field)
	}

	return NewBadRequestError("INVALID_BODY", err.Error())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
