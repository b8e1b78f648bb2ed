package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/okian/migrisk/internal/domain/model"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// getValidator returns the shared validator with the dbkey rule registered.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("dbkey", func(fl validator.FieldLevel) bool {
			return model.ValidKey(fl.Field().String())
		})
	})
	return validate
}

// describeValidation flattens validator errors into one message and the
// list of offending fields.
func describeValidation(err error) (string, []string) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error(), nil
	}
	fields := make([]string, 0, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if ns := fe.Namespace(); ns != "" {
			if i := strings.IndexByte(ns, '.'); i >= 0 {
				name = ns[i+1:]
			}
		}
		fields = append(fields, name)
		msgs = append(msgs, fmt.Sprintf("%s failed %q", name, fe.Tag()))
	}
	return strings.Join(msgs, "; "), fields
}

// checkUserID validates the {user_id} path segment.
func checkUserID(userID string) error {
	if err := getValidator().Var(userID, "required,dbkey"); err != nil {
		return fmt.Errorf("user_id %q is not a valid key", userID)
	}
	return nil
}
