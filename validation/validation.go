// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package validation

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"github.com/danielhkuo/polly/models"
)

// Error carries the translated messages of a failed validation.
type Error struct {
	Fields []string
}

func (e *Error) Error() string {
	return strings.Join(e.Fields, "; ")
}

var (
	validate *validator.Validate
	trans    ut.Translator
)

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	english := en.New()
	uni := ut.New(english, english)
	trans, _ = uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(validate, trans)

	// Report JSON names, not Go field names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	register("password", strongPassword,
		"{0} must be at least 8 characters with upper and lower case letters, a digit and a special character")
	register("polltype", oneOf(models.PollTypeSchedule, models.PollTypeSurvey, models.PollTypeOrganization),
		"{0} must be one of schedule, survey, organization")
	register("vresponse", oneOf(models.ResponseYes, models.ResponseNo, models.ResponseMaybe),
		"{0} must be one of yes, no, maybe")
	register("theme", oneOf(models.ThemeSystem, models.ThemeLight, models.ThemeDark),
		"{0} must be one of system, light, dark")
	register("language", oneOf(models.LanguageEN, models.LanguageDE),
		"{0} must be one of en, de")
}

func register(tag string, fn validator.Func, message string) {
	_ = validate.RegisterValidation(tag, fn)
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error { return ut.Add(tag, message, true) },
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}

func oneOf(values ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, allowed := range values {
			if v == allowed {
				return true
			}
		}
		return false
	}
}

func strongPassword(fl validator.FieldLevel) bool {
	return StrongPassword(fl.Field().String())
}

// StrongPassword reports whether p has at least 8 characters including an
// upper case letter, a lower case letter, a digit and a special character.
func StrongPassword(p string) bool {
	if len([]rune(p)) < 8 {
		return false
	}
	var upper, lower, digit, special bool
	for _, c := range p {
		switch {
		case unicode.IsUpper(c):
			upper = true
		case unicode.IsLower(c):
			lower = true
		case unicode.IsDigit(c):
			digit = true
		case !unicode.IsLetter(c) && !unicode.IsSpace(c):
			special = true
		}
	}
	return upper && lower && digit && special
}

// Struct validates v against its validate tags.
// Field failures come back as *Error; anything else is returned unchanged.
func Struct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Translate(trans))
	}
	return &Error{Fields: fields}
}
