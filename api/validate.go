package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/kdl/schedule-engine/scheduling"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// custom validation tags
	notBlankTag = "notblank"
	isoDateTag  = "isodate"
	hhmmTag     = "hhmm"
)

// maxBodyBytes bounds request bodies; a bulk request of a few hundred slots
// fits comfortably.
const maxBodyBytes = 1 << 20

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	_ = validate.RegisterValidation(isoDateTag, isoDateValidation)
	_ = validate.RegisterValidation(hhmmTag, hhmmValidation)

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, isoDateTag, hhmmTag} {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustomErrs)
	}
}

func translateCustomErrs(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return fe.Field() + " cannot be blank"
	case isoDateTag:
		return fe.Field() + " must be a date in YYYY-MM-DD format"
	case hhmmTag:
		return fe.Field() + " must be a time in HH:MM format"
	default:
		return ""
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func isoDateValidation(fl validator.FieldLevel) bool {
	_, err := scheduling.ParseDate(fl.Field().String())
	return err == nil
}

func hhmmValidation(fl validator.FieldLevel) bool {
	_, err := scheduling.ParseTimeOfDay(fl.Field().String())
	return err == nil
}

// RequestError is a malformed or invalid request body. Fields maps JSON
// field paths to messages.
type RequestError struct {
	Msg    string
	Fields map[string]string
}

func (e *RequestError) Error() string { return e.Msg }

// decode reads a JSON body into dst and runs struct validation.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &RequestError{Msg: "request body is required"}
		}
		return &RequestError{Msg: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &RequestError{Msg: err.Error()}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = fe.Translate(translator)
	}
	return &RequestError{Msg: "request validation failed", Fields: fields}
}

// fieldPath keeps the JSON segments of the namespace, dropping the struct
// name and embedded struct names:
// "ConflictsRequest.proposals[0].SlotRequest.date" -> "proposals[0].date".
func fieldPath(fe validator.FieldError) string {
	parts := strings.Split(fe.Namespace(), ".")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" && unicode.IsLower(rune(p[0])) {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}
