package validation

import (
	"bytes"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// the envelope's data must be a JSON value with content; "null" and "{}"
	// pass required but carry nothing to synchronize
	v.RegisterStructValidation(webhookStructValidation, WebhookRequest{})

	return v
}

func webhookStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(WebhookRequest)

	data := bytes.TrimSpace(req.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte("{}")) {
		sl.ReportError(req.Data, "data", "Data", "data_not_empty", "")
	}
}
