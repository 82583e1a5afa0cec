package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avika/achexport/internal/fieldcipher"
	paymentErrors "github.com/avika/achexport/internal/payment/errors"
)

const maxRequestBodyBytes = 1 << 20

type (
	RespondJSONFunc  func(w http.ResponseWriter, status int, payload interface{})
	RespondErrorFunc func(w http.ResponseWriter, status int, message string, errors ...[]string)
)

func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func RespondError(w http.ResponseWriter, status int, message string, errors ...[]string) {
	payload := map[string]interface{}{
		"status":  "error",
		"message": message,
		"code":    status,
	}

	if len(errors) > 0 && len(errors[0]) > 0 {
		payload["errors"] = errors[0]
	}

	RespondJSON(w, status, payload)
}

// errorResponse maps a core error to its HTTP status and a client-safe message.
// Unknown errors are reported as 500 with fallback.
func errorResponse(err error, fallback string) (int, string, []string) {
	var validationErrors *paymentErrors.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		return http.StatusBadRequest, "Validation failed", validationErrors.Messages()
	case paymentErrors.IsValidationError(err):
		return http.StatusBadRequest, err.Error(), nil
	case errors.Is(err, paymentErrors.ErrEmptyBatch):
		return http.StatusNotFound, paymentErrors.ErrEmptyBatch.Error(), nil
	case errors.Is(err, paymentErrors.ErrRunExists):
		return http.StatusConflict, paymentErrors.ErrRunExists.Error(), nil
	case errors.Is(err, paymentErrors.ErrLinkNotFound):
		return http.StatusNotFound, paymentErrors.ErrLinkNotFound.Error(), nil
	case errors.Is(err, paymentErrors.ErrFileMissing):
		return http.StatusNotFound, paymentErrors.ErrFileMissing.Error(), nil
	case errors.Is(err, paymentErrors.ErrLinkExpired):
		return http.StatusGone, paymentErrors.ErrLinkExpired.Error(), nil
	case errors.Is(err, paymentErrors.ErrLinkAlreadyUsed):
		return http.StatusGone, paymentErrors.ErrLinkAlreadyUsed.Error(), nil
	case paymentErrors.IsFormatError(err), errors.Is(err, fieldcipher.ErrDecryption):
		return http.StatusInternalServerError, "Batch could not be built from stored records", nil
	default:
		return http.StatusInternalServerError, fallback, nil
	}
}
