package model

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a record's validation tags and returns a single
// readable error listing every failed field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, fmt.Sprintf("field %s failed rule %q", e.StructNamespace(), e.Tag()))
	}
	return fmt.Errorf("invalid record: %s", strings.Join(msgs, "; "))
}
