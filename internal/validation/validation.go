package validation

import (
	"errors"
	"fmt"
	"mime/multipart"
	"reflect"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Struct runs tag-based validation and reports failures under the
// struct's json field names.
func Struct(s any) ValidationErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var out ValidationErrors
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		out = append(out, ValidationError{Field: "request", Message: err.Error()})
		return out
	}

	structType := reflect.TypeOf(s)
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	for _, fe := range fieldErrs {
		name := fe.StructField()
		if field, ok := structType.FieldByName(fe.StructField()); ok {
			if tag := strings.Split(field.Tag.Get("json"), ",")[0]; tag != "" && tag != "-" {
				name = tag
			}
		}
		out = append(out, ValidationError{Field: name, Message: tagMessage(name, fe)})
	}
	return out
}

func tagMessage(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %q is required", name)
	case "url":
		return fmt.Sprintf("field %q must be a valid URL", name)
	case "oneof":
		return fmt.Sprintf("field %q must be one of: %s", name, fe.Param())
	case "max":
		return fmt.Sprintf("field %q must be no longer than %s", name, fe.Param())
	default:
		return fmt.Sprintf("field %q failed %q validation", name, fe.Tag())
	}
}

// ValidateUpload checks a multipart media upload: size limits and the
// sniffed content type, which must be audio or video.
func ValidateUpload(file *multipart.FileHeader, maxSize int64) ValidationErrors {
	var errs ValidationErrors

	if file.Size == 0 {
		errs = append(errs, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s is empty", file.Filename),
		})
		return errs
	}
	if maxSize > 0 && file.Size > maxSize {
		errs = append(errs, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s exceeds maximum size of %d bytes", file.Filename, maxSize),
		})
		return errs
	}

	f, err := file.Open()
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s could not be read", file.Filename),
		})
		return errs
	}
	defer f.Close()

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s could not be sniffed", file.Filename),
		})
		return errs
	}
	if !isMedia(mtype) {
		errs = append(errs, ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %s has unsupported content type: %s", file.Filename, mtype.String()),
		})
	}

	return errs
}

func isMedia(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		t := m.String()
		if strings.HasPrefix(t, "audio/") || strings.HasPrefix(t, "video/") {
			return true
		}
	}
	return false
}
