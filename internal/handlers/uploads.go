// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"errors"
	"net/http"

	"librarybot/internal/middleware"
	"librarybot/internal/models"
	"librarybot/internal/upload"
)

// Uploads exposes the guided upload workflow. The operator in the path must
// be the actor the frontend is acting for. Privilege is checked on every
// step, so an operator who loses it mid-session can only cancel.
type Uploads struct {
	manager *upload.Manager
}

// NewUploads creates a new Uploads handler.
func NewUploads(manager *upload.Manager) *Uploads {
	return &Uploads{manager: manager}
}

type startRequest struct {
	Mode string `json:"mode"`
}

// uploadResponse is what the frontend renders after each step. Problem is
// set when the step was rejected or needs to be repeated.
type uploadResponse struct {
	upload.Outcome
	Session *upload.Session `json:"session,omitempty"`
	Problem *errorBody      `json:"problem,omitempty"`
}

// operator resolves the path operator and checks it against the actor.
// With needPrivilege the actor must also be allowed to manage the catalog.
func (h *Uploads) operator(r *http.Request, needPrivilege bool) (models.Actor, error) {
	id, err := operatorParam(r)
	if err != nil {
		return models.Actor{}, err
	}
	actor := middleware.ActorFromCtx(r.Context())
	if actor.ID == 0 || actor.ID != id {
		return models.Actor{}, upload.ErrNotPrivileged
	}
	if needPrivilege && !actor.CanManageCatalog() {
		return models.Actor{}, upload.ErrNotPrivileged
	}
	return actor, nil
}

// respond writes out, attaching err or the outcome's own problem. Internal
// errors go through writeError so their detail is never exposed.
func respond(w http.ResponseWriter, r *http.Request, status int, out upload.Outcome, sess *upload.Session, err error) {
	resp := uploadResponse{Outcome: out, Session: sess}
	if err != nil {
		code, body := problem(r, err)
		if code == http.StatusInternalServerError {
			writeJSON(w, code, body)
			return
		}
		status = code
		resp.Problem = &body
	} else if out.Problem != nil {
		_, body := problem(r, out.Problem)
		resp.Problem = &body
	}
	if resp.Problem != nil {
		resp.Problem.State = out.State.String()
	}
	writeJSON(w, status, resp)
}

// Start opens a session for the operator, replacing any stale one.
func (h *Uploads) Start(w http.ResponseWriter, r *http.Request) {
	actor, err := h.operator(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mode, err := upload.ParseMode(req.Mode)
	if err != nil {
		writeError(w, r, &models.ValidationError{Field: "mode", Reason: err.Error()})
		return
	}
	sess, out, err := h.manager.Start(r.Context(), actor, mode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, out, sess, nil)
}

// Event feeds one operator input to the session.
func (h *Uploads) Event(w http.ResponseWriter, r *http.Request) {
	actor, err := h.operator(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var ev upload.Event
	if err := decodeJSON(r, &ev); err != nil {
		writeError(w, r, err)
		return
	}
	if err := validateEvent(ev); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.manager.Handle(r.Context(), actor.ID, ev)
	if errors.Is(err, upload.ErrNoSession) {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, out, nil, err)
}

// Current returns the operator's active session.
func (h *Uploads) Current(w http.ResponseWriter, r *http.Request) {
	actor, err := h.operator(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.manager.Current(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Cancel ends the operator's session and discards anything queued.
func (h *Uploads) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, err := h.operator(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.manager.Cancel(r.Context(), actor.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, out, nil, nil)
}
