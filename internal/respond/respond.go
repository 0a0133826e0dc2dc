package respond

import (
	"encoding/json"
	"net/http"
)

// Failure is the body of every non-2xx JSON response. Status is a stable
// machine-readable classification; Error is for humans.
type Failure struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

// JSON writes payload with the given status code.
func JSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Error writes a Failure body.
func Error(w http.ResponseWriter, status int, classification, message string) {
	JSON(w, status, Failure{Error: message, Status: classification})
}
