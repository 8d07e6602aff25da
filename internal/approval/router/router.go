package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/OpenOA/formflow/internal/approval/service"
	"github.com/OpenOA/formflow/internal/form"
)

// statusForError maps service errors onto HTTP status codes. Unrecognized
// errors fall through to 500.
func statusForError(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrFlowNotFound),
		errors.Is(err, service.ErrNodeNotFound),
		errors.Is(err, service.ErrRecordNotFound),
		errors.Is(err, form.ErrFormNotFound),
		errors.Is(err, form.ErrSubmissionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyDecided),
		errors.Is(err, service.ErrPendingRecordExists),
		errors.Is(err, service.ErrFlowConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
