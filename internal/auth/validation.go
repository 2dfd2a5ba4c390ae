package auth

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// slugRegex allows lowercase words joined by single hyphens
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validator instance for request validation
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRegex.MatchString(fl.Field().String())
	})
}

// ValidationError represents a validation error with field details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// validateStruct runs the struct tags and converts failures to field messages
func validateStruct(v interface{}) []ValidationError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []ValidationError{{Field: "body", Message: MsgInvalidRequest}}
	}
	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Campo obrigatório."
	case "email":
		return "Formato de email inválido."
	case "min":
		return "Deve ter no mínimo " + fe.Param() + " caracteres."
	case "max":
		return "Deve ter no máximo " + fe.Param() + " caracteres."
	case "gte":
		return "Deve ser maior ou igual a " + fe.Param() + "."
	case "lte":
		return "Deve ser menor ou igual a " + fe.Param() + "."
	case "slug":
		return "Use apenas letras minúsculas, números e hífens."
	case "uuid":
		return "Identificador inválido."
	case "ip":
		return "IP inválido."
	case "alphanum":
		return "Use apenas letras e números."
	case "dive":
		return "Valor inválido."
	}
	return "Valor inválido."
}

// validationDetails groups validation errors by field for the API envelope
func validationDetails(errs []ValidationError) map[string][]string {
	details := make(map[string][]string)
	for _, ve := range errs {
		details[ve.Field] = append(details[ve.Field], ve.Message)
	}
	return details
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
