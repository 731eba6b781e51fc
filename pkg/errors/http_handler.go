package errors

import (
	"encoding/json"
	"net/http"
)

// WriteError renders err as a JSON error body. Non-AppErrors become 500s.
func WriteError(w http.ResponseWriter, err error) error {
	appErr := AsAppError(err)
	w.Header().Set("Content-Type", "application/json")
	if HasCode(appErr, CodeLockContention) {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(appErr.StatusCode())
	return json.NewEncoder(w).Encode(appErr.Response())
}
