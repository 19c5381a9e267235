package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

var (
	// custom validation tags & texts
	aliasTag   = "alias"
	aliasText  = "only letters, digits, spaces, apostrophes, dots and hyphens are allowed"
	aliasRegex = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} '.\-]*$`)

	requiredTag  = "required"
	requiredText = "this field is required"
)

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(aliasTag, aliasValidation)
	RegisterCustomTranslation(validate, translator, aliasTag, aliasText)

	RegisterCustomTranslation(validate, translator, requiredTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Custom Global Validators

// aliasValidation only allows characters found in display names.
func aliasValidation(fl validator.FieldLevel) bool {
	return aliasRegex.MatchString(fl.Field().String())
}
