package handlers

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse writes a JSON error body {"error", "message"} with statusCode.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes data as JSON with statusCode. Responses describe live
// server state and are never cached.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_, err = w.Write(append(body, '\n'))
	return err
}
