// Package handler implements the JSON endpoints of the Hearth API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/hearth/internal/model"
	"github.com/dukerupert/hearth/internal/websocket"
)

const maxJSONBytes = 1 << 20

var errEmptyBody = &requestError{status: http.StatusBadRequest, msg: "request body is required"}

// Broadcaster fans change notifications out to a household's clients.
type Broadcaster interface {
	Broadcast(householdID string, msg websocket.Message)
}

// requestError is an error the client caused. Its message is returned as is.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return invalid("%s is required", field)
	}
	return nil
}

// optionalDate accepts an empty value or a YYYY-MM-DD / RFC 3339 date.
func optionalDate(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if _, err := model.ParseDate(value); err != nil {
		return invalid("%s must be a date (YYYY-MM-DD)", field)
	}
	return nil
}

func requiredDate(field, value string) error {
	if err := required(field, value); err != nil {
		return err
	}
	return optionalDate(field, value)
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return invalid("%s must be one of %s", field, strings.Join(allowed, ", "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

// fail writes err to the client. Request errors keep their status and
// message; anything else is logged and hidden behind a generic 500.
func fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var re *requestError
	if errors.As(err, &re) {
		writeError(w, re.status, re.msg)
		return
	}
	logger.ErrorContext(r.Context(), "request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// decodeJSON reads a JSON request body into v. Malformed input is a 400 and
// an oversized body a 413.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errEmptyBody
		case errors.As(err, &tooBig):
			return &requestError{status: http.StatusRequestEntityTooLarge, msg: "request body too large"}
		case errors.Is(err, model.ErrUnknownHealthType):
			return invalid("%s", err.Error())
		default:
			return invalid("invalid JSON")
		}
	}
	return nil
}
