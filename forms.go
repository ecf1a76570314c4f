package main

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"mtahub/portal_backend/arabic"
	ss "mtahub/portal_backend/storage_service"
)

// The three form shapes mirror the portal's application modals. Values
// arrive as loose JSON; the typed structs pin down what each type requires.

type adminForm struct {
	Name           string `json:"name" validate:"required"`
	Age            string `json:"age" validate:"required"`
	Country        string `json:"country" validate:"required"`
	Benefit        string `json:"benefit" validate:"required"`
	Experience     string `json:"experience" validate:"required"`
	Responsibility any    `json:"responsibility"`
	Oath           string `json:"oath" validate:"required"`
}

type scriptForm struct {
	Name       string `json:"name" validate:"required"`
	Age        string `json:"age" validate:"required"`
	Languages  string `json:"languages" validate:"required"`
	Experience string `json:"experience" validate:"required"`
	Maps       string `json:"maps" validate:"required"`
	Frequency  string `json:"frequency" validate:"required"`
}

type hacksForm struct {
	Name            string `json:"name" validate:"required"`
	Age             string `json:"age" validate:"required"`
	ServerLogo      string `json:"serverLogo"`
	PreviousServers string `json:"previousServers" validate:"required"`
	HackTypes       string `json:"hackTypes" validate:"required"`
	ActiveHours     string `json:"activeHours" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report field errors under their json names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateFormData checks formData against the shape for typ and returns
// per-field errors, empty when the form is valid. The admin oath is checked
// here: the browser also validates it, but the API cannot trust the browser.
func validateFormData(typ ss.ApplicationType, formData map[string]any) map[string]string {
	var form any
	switch typ {
	case ss.TypeAdmin:
		form = &adminForm{}
	case ss.TypeScript:
		form = &scriptForm{}
	case ss.TypeHacks:
		form = &hacksForm{}
	default:
		return map[string]string{"type": "نوع تقديم غير صحيح"}
	}

	raw, err := json.Marshal(formData)
	if err != nil {
		return map[string]string{"formData": "بيانات غير صحيحة"}
	}
	if err := json.Unmarshal(raw, form); err != nil {
		return map[string]string{"formData": "بيانات غير صحيحة"}
	}

	fields := map[string]string{}
	if err := validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return map[string]string{"formData": "بيانات غير صحيحة"}
		}
		for _, fe := range verrs {
			fields[fe.Field()] = "هذا الحقل مطلوب"
		}
	}

	if af, ok := form.(*adminForm); ok && fields["oath"] == "" {
		if !arabic.ValidateOath(af.Oath) {
			fields["oath"] = "يجب كتابة القسم بالضبط كما هو مطلوب"
		}
	}
	return fields
}
