package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
	"github.com/tejasgodse24/chat-with-pdf/internal/logger"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func sendJSON(w http.ResponseWriter, log logger.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("Failed to encode JSON: %v", err)
	}
}

func sendStatus(w http.ResponseWriter, log logger.Logger, status int, message string) {
	sendJSON(w, log, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}

// sendError maps err onto a status code and a client-safe message. Details
// stay in the logs.
func sendError(w http.ResponseWriter, log logger.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed: %v", err)
	} else {
		log.Warn("Request rejected: %v", err)
	}
	sendStatus(w, log, status, apperrors.PublicMessage(err))
}

// NotFound answers requests that match no route
func NotFound(w http.ResponseWriter, r *http.Request) {
	sendStatus(w, logger.Nop(), http.StatusNotFound, "Resource not found")
}

// MethodNotAllowed answers requests whose path exists under another method
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	sendStatus(w, logger.Nop(), http.StatusMethodNotAllowed, "Method not allowed")
}

// pagination reads limit and offset query parameters
func pagination(r *http.Request) (offset, limit int, err error) {
	limit, err = intQueryParam(r, "limit", defaultPageLimit)
	if err != nil {
		return 0, 0, err
	}
	if limit < 1 || limit > maxPageLimit {
		return 0, 0, apperrors.Validation("pagination", "limit must be between 1 and "+strconv.Itoa(maxPageLimit))
	}
	offset, err = intQueryParam(r, "offset", 0)
	if err != nil {
		return 0, 0, err
	}
	if offset < 0 {
		return 0, 0, apperrors.Validation("pagination", "offset cannot be negative")
	}
	return offset, limit, nil
}

func intQueryParam(r *http.Request, key string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperrors.Validation("parse_query", key+" must be an integer")
	}
	return n, nil
}

func boolFormValue(r *http.Request, key string, defaultValue bool) bool {
	value := r.FormValue(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperrors.New(apperrors.ErrValidation, "decode_request", "invalid request body", err)
	}
	return nil
}
