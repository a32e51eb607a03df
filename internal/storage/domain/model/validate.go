package model

import (
	"errors"
	"strings"

	apperrors "github.com/qodinger/role-reactor-bot-sub005/internal/shared/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a document's struct tags before it is written anywhere.
func Validate(doc interface{}) error {
	err := validate.Struct(doc)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError(err.Error())
	}

	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
	}
	return apperrors.NewValidationError("invalid document: "+strings.Join(fields, ", ")).
		WithDetail("fields", fields)
}
