package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jacentio/squares/board"
)

type errorResponse struct {
	OK     bool     `json:"ok"`
	Error  string   `json:"error"`
	Taken  []string `json:"taken,omitempty"`
	Detail string   `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeError maps err onto a status code using the board error kinds.
func writeError(w http.ResponseWriter, err error) {
	var e *board.Error
	if !errors.As(err, &e) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:  "server error",
			Detail: err.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, board.ErrBadRequest), errors.Is(err, board.ErrInvalidState):
		writeMessage(w, http.StatusBadRequest, e.Message)
	case errors.Is(err, board.ErrNotFound):
		writeMessage(w, http.StatusNotFound, e.Message)
	case errors.Is(err, board.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: e.Message, Taken: e.Taken})
	default:
		detail := e.Message
		if e.Err != nil {
			detail = e.Err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:  "server error",
			Detail: detail,
		})
	}
}
