package common

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindRequest decodes the body into req, trims every string field and runs
// the `validate` tags. When something is wrong the failure is read from the
// `code` and `msg` tags of the first offending field.
func BindRequest(c *gin.Context, req interface{}) (Failure, bool) {
	if err := c.ShouldBind(req); err != nil {
		return firstFailure(req), false
	}
	trimStrings(reflect.ValueOf(req))

	if err := validate.Struct(req); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			if failure, ok := failureFor(req, fieldErrors[0].StructField()); ok {
				return failure, false
			}
		}
		return firstFailure(req), false
	}
	return Failure{}, true
}

// Validate runs the `validate` tags without binding.
func Validate(req interface{}) error {
	trimStrings(reflect.ValueOf(req))
	return validate.Struct(req)
}

func failureFor(req interface{}, field string) (Failure, bool) {
	t := reflect.TypeOf(req)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	f, ok := t.FieldByName(field)
	if !ok {
		return Failure{}, false
	}
	return failureFromTag(f.Tag)
}

func firstFailure(req interface{}) Failure {
	t := reflect.TypeOf(req)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		if failure, ok := failureFromTag(t.Field(i).Tag); ok {
			return failure
		}
	}
	return Failure{Code: 400, Description: "Invalid request."}
}

func failureFromTag(tag reflect.StructTag) (Failure, bool) {
	raw := tag.Get("code")
	if raw == "" {
		return Failure{}, false
	}
	code, err := strconv.Atoi(raw)
	if err != nil {
		return Failure{}, false
	}
	return Failure{Code: code, Description: tag.Get("msg")}, true
}

func trimStrings(v reflect.Value) {
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strings.TrimSpace(field.String()))
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				for j := 0; j < field.Len(); j++ {
					field.Index(j).SetString(strings.TrimSpace(field.Index(j).String()))
				}
			}
		}
	}
}

// ValidID reports whether id looks like a record ID.
func ValidID(id string) bool {
	return validate.Var(id, "required,uuid") == nil
}
