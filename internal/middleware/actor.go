// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"librarybot/internal/models"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// ActorKey is the context key for the calling actor.
	ActorKey contextKey = "actor"

	// HeaderActorID carries the chat user id the frontend acts for.
	HeaderActorID = "X-Actor-ID"
	// HeaderPrivileged is set by the frontend when the user is an admin.
	// Deciding who is an admin is the frontend's business.
	HeaderPrivileged = "X-Privileged"
)

// Identify reads the actor headers set by the chat frontend and stores the
// actor in the request context. Requests without a valid actor id carry
// the zero Actor, which is never privileged.
func Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var actor models.Actor
		if id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderActorID)), 10, 64); err == nil {
			actor.ID = models.ActorID(id)
			actor.Privileged, _ = strconv.ParseBool(r.Header.Get(HeaderPrivileged))
		}

		ctx := context.WithValue(r.Context(), ActorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePrivileged returns 403 unless the actor may manage the catalog.
// Must be applied after Identify.
func RequirePrivileged(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ActorFromCtx(r.Context()).CanManageCatalog() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ActorFromCtx extracts the actor from the request context. Returns the
// zero Actor if Identify did not run.
func ActorFromCtx(ctx context.Context) models.Actor {
	actor, _ := ctx.Value(ActorKey).(models.Actor)
	return actor
}
