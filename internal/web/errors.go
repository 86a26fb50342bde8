package web

import (
	"errors"
	"net/http"

	"github.com/SyedDaiam9101/predict-service/internal/predictor"
	"github.com/SyedDaiam9101/predict-service/internal/schema"
)

const (
	msgUnavailable = "The model for this predictor could not be loaded. Please try again later."
	msgFailed      = "Prediction failed. Please check your inputs and try again."
)

// httpError maps a predictor error to a status and a user-facing message.
// Inference failures get a generic message; the cause is only logged.
func httpError(err error) (int, string) {
	switch {
	case errors.Is(err, predictor.ErrUnknownApp):
		return http.StatusNotFound, err.Error()
	case schema.IsValidation(err):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, predictor.ErrModelUnavailable):
		return http.StatusServiceUnavailable, msgUnavailable
	default:
		return http.StatusInternalServerError, msgFailed
	}
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func newErrorBody(err error, msg string) errorBody {
	body := errorBody{Error: msg}
	var fe *schema.FieldError
	if errors.As(err, &fe) {
		body.Field = fe.Field
	}
	return body
}
