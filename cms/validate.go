package cms

import (
	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(redirectTargetRule, Redirect{})
	return v
}

func redirectTargetRule(sl validator.StructLevel) {
	r := sl.Current().Interface().(Redirect)

	if r.HTTPStatus == 410 {
		return
	}

	switch r.Type {
	case RedirectTypeURL:
		if r.Target == nil || r.Target.URL == "" {
			sl.ReportError(r.Target, "Target", "target", "url_target", "")
		}
	case RedirectTypePost:
		if r.Target == nil || r.Target.Slug == "" {
			sl.ReportError(r.Target, "Target", "target", "post_target", "")
		}
	}
}
