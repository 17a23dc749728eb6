package validate

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/fr"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	fr_translations "github.com/go-playground/validator/v10/translations/fr"
	"github.com/pkg/errors"

	"github.com/sefimap/manager/internal/services"
)

var (
	Validate   *validator.Validate
	Translator ut.Translator

	// custom validation tags
	notBlankTag = "notblank"
	phoneTag    = "phone"
)

var ErrInvalid = errors.New("données invalides")

// ValidationError carries one French message per offending JSON field.
type ValidationError struct {
	Err    error
	Fields map[string]string
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func init() {
	Validate = validator.New()

	_fr := fr.New()
	uni := ut.New(_fr, _fr)
	Translator, _ = uni.GetTranslator("fr")
	_ = fr_translations.RegisterDefaultTranslations(Validate, Translator)

	// Use JSON tag names (or form names) for errors instead of Go struct names.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = Validate.RegisterValidation(notBlankTag, notBlankValidation)
	_ = Validate.RegisterValidation(phoneTag, phoneValidation)

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, phoneTag} {
		_ = Validate.RegisterTranslation(tag, Translator, registerFn, translateCustom)
	}
}

func translateCustom(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return "ce champ ne peut pas être vide"
	case phoneTag:
		return "numéro de téléphone invalide"
	default:
		return ""
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

func phoneValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return services.NormPhone(str) != ""
	}
	return false
}

// Struct validates v and returns a *ValidationError listing every field.
func Struct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Translate(Translator)
	}
	return &ValidationError{Err: ErrInvalid, Fields: fields}
}
