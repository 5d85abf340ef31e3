// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the JSON API the chat frontend calls:
// catalog browsing and search, admin catalog management and the guided
// upload workflow.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"librarybot/internal/models"
	"librarybot/internal/upload"
)

// maxBodyBytes caps request bodies; events and catalog edits are small.
const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	State string `json:"state,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound), errors.Is(err, upload.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicate), errors.Is(err, models.ErrConflict),
		errors.Is(err, upload.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, upload.ErrNotPrivileged):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// problem builds the error body for err. Internal errors are logged and
// never shown to the caller.
func problem(r *http.Request, err error) (int, errorBody) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		return status, errorBody{Error: "internal server error"}
	}
	body := errorBody{Error: err.Error()}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	return status, body
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := problem(r, err)
	writeJSON(w, status, body)
}

// decodeJSON reads a JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &models.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, &models.ValidationError{Field: name, Reason: "must be a UUID"}
	}
	return id, nil
}

func operatorParam(r *http.Request) (models.ActorID, error) {
	n, err := strconv.ParseInt(chi.URLParam(r, "operator"), 10, 64)
	if err != nil {
		return 0, &models.ValidationError{Field: "operator", Reason: "must be an integer id"}
	}
	return models.ActorID(n), nil
}

// kindQuery reads the optional ?kind= filter.
func kindQuery(r *http.Request) (*models.FileKind, error) {
	v := strings.TrimSpace(r.URL.Query().Get("kind"))
	if v == "" {
		return nil, nil
	}
	k, err := models.ParseFileKind(v)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// intQuery reads an optional positive integer query parameter.
func intQuery(r *http.Request, name string, fallback int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &models.ValidationError{Field: name, Reason: fmt.Sprintf("must be a non-negative integer, got %q", v)}
	}
	return n, nil
}

func boolQuery(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
