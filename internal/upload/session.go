// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package upload

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"librarybot/internal/models"
)

var (
	// ErrNotPrivileged is returned when a non-privileged actor tries to
	// start an upload.
	ErrNotPrivileged = errors.New("upload: actor is not privileged")
	// ErrNoSession is returned when an operator has no active session.
	ErrNoSession = errors.New("upload: no active session")
	// ErrSessionClosed is returned when an event reaches a finished session.
	ErrSessionClosed = errors.New("upload: session already finished")
)

// Record is the book being collected, or one waiting in a batch queue.
type Record struct {
	FileReference   string          `json:"file_reference"`
	FileKind        models.FileKind `json:"file_kind"`
	Title           string          `json:"title,omitempty"`
	Author          *string         `json:"author,omitempty"`
	Narrator        *string         `json:"narrator,omitempty"`
	Description     *string         `json:"description,omitempty"`
	DurationSeconds *int            `json:"duration_seconds,omitempty"`
	SizeBytes       *int64          `json:"size_bytes,omitempty"`
}

func (r *Record) newBook(category uuid.UUID, by models.ActorID) models.NewBook {
	return models.NewBook{
		Title:           r.Title,
		FileReference:   r.FileReference,
		FileKind:        r.FileKind,
		CategoryID:      category,
		UploadedBy:      by,
		Author:          r.Author,
		Narrator:        r.Narrator,
		Description:     r.Description,
		DurationSeconds: r.DurationSeconds,
		SizeBytes:       r.SizeBytes,
	}
}

// Session is one operator's upload in progress. It is plain data so it can
// be persisted between turns.
type Session struct {
	Operator   models.ActorID `json:"operator"`
	Mode       Mode           `json:"mode"`
	State      State          `json:"state"`
	CategoryID *uuid.UUID     `json:"category_id,omitempty"`
	Current    *Record        `json:"current,omitempty"`
	Queue      []Record       `json:"queue,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewSession returns a session waiting for a category.
func NewSession(operator models.ActorID, mode Mode, now time.Time) *Session {
	return &Session{
		Operator:  operator,
		Mode:      mode,
		State:     SelectCategory,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// queued reports whether ref is already waiting in the queue.
func (s *Session) queued(ref string) bool {
	for i := range s.Queue {
		if s.Queue[i].FileReference == ref {
			return true
		}
	}
	return false
}

// Outcome is what the frontend needs to render after an event: the new
// state, whether the same prompt should be shown again and why, and the
// results of any commit.
type Outcome struct {
	State    State           `json:"state"`
	Reprompt bool            `json:"reprompt,omitempty"`
	Problem  error           `json:"-"`
	Kind     models.FileKind `json:"file_kind,omitempty"`

	BookID    *uuid.UUID `json:"book_id,omitempty"`
	Queued    int        `json:"queued,omitempty"`
	Succeeded int        `json:"succeeded,omitempty"`
	Failed    int        `json:"failed,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}
