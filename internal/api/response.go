package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is the envelope of every JSON body: exactly one of Data or Error is set.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Response{Data: data})
}

func JSONError(w http.ResponseWriter, status int, message string) {
	write(w, status, Response{Error: message})
}

func write(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("writing json response", "status", status, "error", err)
	}
}
