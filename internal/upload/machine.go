// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"librarybot/internal/metrics"
	"librarybot/internal/models"
)

// CategoryLookup resolves the categories an operator selects.
type CategoryLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	HasChildren(ctx context.Context, id uuid.UUID) (bool, error)
}

// BookWriter is the part of the book store the workflow commits through.
type BookWriter interface {
	FindByFileReference(ctx context.Context, ref string) (*models.Book, error)
	Create(ctx context.Context, in models.NewBook) (uuid.UUID, error)
	CreateBulk(ctx context.Context, records []models.NewBook) (succeeded, failed int)
}

// Machine holds the transition function. It keeps no per-session state;
// everything lives in the Session passed to Apply.
type Machine struct {
	categories CategoryLookup
	books      BookWriter
	now        func() time.Time
}

// NewMachine returns a Machine backed by the given stores.
func NewMachine(categories CategoryLookup, books BookWriter) *Machine {
	return &Machine{categories: categories, books: books, now: time.Now}
}

// Apply advances s by one event. Retryable input problems leave the state
// unchanged and come back as Outcome.Reprompt with Outcome.Problem set.
// A returned error means the event could not be processed; when it is a
// NotFoundError or DuplicateError the session has been cancelled.
func (m *Machine) Apply(ctx context.Context, s *Session, ev Event) (Outcome, error) {
	if s.State.Terminal() {
		return Outcome{State: s.State, Reason: s.Reason}, ErrSessionClosed
	}

	from := s.State
	out, err := m.apply(ctx, s, ev)
	s.UpdatedAt = m.now()
	out.State = s.State
	if out.Reason == "" {
		out.Reason = s.Reason
	}
	metrics.UploadTransitions.WithLabelValues(string(s.Mode), from.String(), string(ev.Kind)).Inc()
	return out, err
}

func (m *Machine) apply(ctx context.Context, s *Session, ev Event) (Outcome, error) {
	if ev.Kind == EventCancel {
		cancel(s, "cancelled by operator")
		return Outcome{}, nil
	}

	switch s.State {
	case SelectCategory:
		return m.selectCategory(ctx, s, ev)
	case SelectSubcategory:
		return m.selectSubcategory(ctx, s, ev)
	case AwaitFile:
		return m.awaitFile(ctx, s, ev)
	case AwaitTitle:
		return m.awaitTitle(s, ev)
	case AwaitAuthor, AwaitNarrator:
		return m.awaitOptional(s, ev)
	case AwaitDescription:
		return m.awaitDescription(ctx, s, ev)
	default:
		return Outcome{}, fmt.Errorf("upload: no transitions from %s", s.State)
	}
}

func cancel(s *Session, reason string) {
	s.State = Cancelled
	s.Current = nil
	s.Queue = nil
	s.Reason = reason
}

func reprompt(field, reason string) (Outcome, error) {
	return Outcome{Reprompt: true, Problem: &models.ValidationError{Field: field, Reason: reason}}, nil
}

func unexpected(s *Session) (Outcome, error) {
	return reprompt("input", "unexpected input while "+strings.ReplaceAll(s.State.String(), "_", " "))
}

// resolveCategory loads a live category. A missing or deleted category
// ends the session.
func (m *Machine) resolveCategory(ctx context.Context, s *Session, id uuid.UUID) (*models.Category, error) {
	c, err := m.categories.FindByID(ctx, id)
	if err == nil && c.IsDeleted {
		err = models.NewNotFound("category", id)
	}
	if errors.Is(err, models.ErrNotFound) {
		cancel(s, err.Error())
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("resolve category: %w", err)
	}
	return c, nil
}

// enterCategory records the chosen category and asks for a subcategory
// when the category has live children.
func (m *Machine) enterCategory(ctx context.Context, s *Session, c *models.Category) (Outcome, error) {
	id := c.ID
	s.CategoryID = &id
	children, err := m.categories.HasChildren(ctx, c.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check subcategories: %w", err)
	}
	if children {
		s.State = SelectSubcategory
	} else {
		s.State = AwaitFile
	}
	return Outcome{}, nil
}

func (m *Machine) selectCategory(ctx context.Context, s *Session, ev Event) (Outcome, error) {
	if ev.Kind != EventCategorySelected {
		return reprompt("category", "choose a category first")
	}
	c, err := m.resolveCategory(ctx, s, ev.CategoryID)
	if err != nil {
		return Outcome{}, err
	}
	return m.enterCategory(ctx, s, c)
}

func (m *Machine) selectSubcategory(ctx context.Context, s *Session, ev Event) (Outcome, error) {
	switch ev.Kind {
	case EventSkip:
		s.State = AwaitFile
		return Outcome{}, nil
	case EventCategorySelected:
		c, err := m.resolveCategory(ctx, s, ev.CategoryID)
		if err != nil {
			return Outcome{}, err
		}
		if c.ParentID == nil || s.CategoryID == nil || *c.ParentID != *s.CategoryID {
			return reprompt("category", "choose one of the listed subcategories")
		}
		return m.enterCategory(ctx, s, c)
	default:
		return unexpected(s)
	}
}

func (m *Machine) awaitFile(ctx context.Context, s *Session, ev Event) (Outcome, error) {
	switch ev.Kind {
	case EventFileReceived:
		return m.receiveFile(ctx, s, ev.File)
	case EventFinish:
		if !s.Mode.queues() {
			return reprompt("file", "send the file to upload")
		}
		return m.flush(ctx, s), nil
	case EventSkip:
		return reprompt("file", "a file is required")
	default:
		return unexpected(s)
	}
}

// referenceTaken reports whether ref is already in the catalog or waiting
// in this session's queue.
func (m *Machine) referenceTaken(ctx context.Context, s *Session, ref string) (bool, error) {
	if s.queued(ref) {
		return true, nil
	}
	_, err := m.books.FindByFileReference(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("check file reference: %w", err)
	}
}

func (m *Machine) receiveFile(ctx context.Context, s *Session, f *FileInfo) (Outcome, error) {
	if f == nil || strings.TrimSpace(f.Reference) == "" {
		return reprompt("file", "no file was attached")
	}
	kind, err := Classify(*f)
	if err != nil {
		return Outcome{Reprompt: true, Problem: err}, nil
	}
	taken, err := m.referenceTaken(ctx, s, f.Reference)
	if err != nil {
		return Outcome{}, err
	}
	if taken {
		dup := &models.DuplicateError{Entity: "book", Field: "file_reference", Value: f.Reference}
		return Outcome{Reprompt: true, Problem: dup, Kind: kind}, nil
	}

	rec := Record{
		FileReference: f.Reference,
		FileKind:      kind,
		SizeBytes:     f.Size,
	}
	if kind == models.FileKindAudio {
		rec.DurationSeconds = f.Duration
	}

	if s.Mode == ModeBulk {
		c := ParseCaption(f.Caption, f.FileName)
		rec.Title, rec.Author, rec.Description = c.Title, c.Author, c.Description
		if kind == models.FileKindAudio {
			rec.Narrator = c.Narrator
		}
		nb := rec.newBook(*s.CategoryID, s.Operator)
		if err := nb.Validate(); err != nil {
			return Outcome{Reprompt: true, Problem: err, Kind: kind}, nil
		}
		rec.Title = nb.Title
		s.Queue = append(s.Queue, rec)
		return Outcome{Kind: kind, Queued: len(s.Queue)}, nil
	}

	s.Current = &rec
	s.State = AwaitTitle
	return Outcome{Kind: kind, Queued: len(s.Queue)}, nil
}

// textValue returns the trimmed text of a text event, or a validation
// problem when it is blank.
func textValue(ev Event, field string) (string, error) {
	v := strings.TrimSpace(ev.Text)
	if v == "" {
		return "", &models.ValidationError{Field: field, Reason: "must not be empty"}
	}
	return v, nil
}

func (m *Machine) awaitTitle(s *Session, ev Event) (Outcome, error) {
	switch ev.Kind {
	case EventText:
		title, err := textValue(ev, "title")
		if err == nil {
			err = models.CheckLength("title", title, models.BookTitleMin, models.BookTitleMax)
		}
		if err != nil {
			return Outcome{Reprompt: true, Problem: err}, nil
		}
		s.Current.Title = title
		s.State = AwaitAuthor
		return Outcome{Kind: s.Current.FileKind}, nil
	case EventSkip:
		return reprompt("title", "a title is required")
	default:
		return unexpected(s)
	}
}

// awaitOptional handles the author and narrator prompts.
func (m *Machine) awaitOptional(s *Session, ev Event) (Outcome, error) {
	field, max := "author", models.BookAuthorMax
	if s.State == AwaitNarrator {
		field, max = "narrator", models.BookNarratorMax
	}

	var value *string
	switch ev.Kind {
	case EventSkip:
	case EventText:
		v, err := textValue(ev, field)
		if err == nil {
			err = models.CheckLength(field, v, 0, max)
		}
		if err != nil {
			return Outcome{Reprompt: true, Problem: err}, nil
		}
		value = &v
	default:
		return unexpected(s)
	}

	if s.State == AwaitAuthor {
		s.Current.Author = value
		if s.Current.FileKind == models.FileKindAudio {
			s.State = AwaitNarrator
		} else {
			s.State = AwaitDescription
		}
	} else {
		s.Current.Narrator = value
		s.State = AwaitDescription
	}
	return Outcome{Kind: s.Current.FileKind}, nil
}

func (m *Machine) awaitDescription(ctx context.Context, s *Session, ev Event) (Outcome, error) {
	var value *string
	switch ev.Kind {
	case EventSkip:
	case EventText:
		v, err := textValue(ev, "description")
		if err == nil {
			err = models.CheckLength("description", v, 0, models.BookDescriptionMax)
		}
		if err != nil {
			return Outcome{Reprompt: true, Problem: err}, nil
		}
		value = &v
	default:
		return unexpected(s)
	}
	s.Current.Description = value
	return m.commit(ctx, s)
}

// commit finishes the current record: single mode writes it to the store
// and ends the session, queueing modes append it and wait for the next file.
func (m *Machine) commit(ctx context.Context, s *Session) (Outcome, error) {
	rec := *s.Current
	s.State = Committed

	if s.Mode.queues() {
		s.Queue = append(s.Queue, rec)
		s.Current = nil
		s.State = AwaitFile
		return Outcome{Kind: rec.FileKind, Queued: len(s.Queue)}, nil
	}

	id, err := m.books.Create(ctx, rec.newBook(*s.CategoryID, s.Operator))
	switch {
	case err == nil:
		s.Current = nil
		s.State = Done
		metrics.UploadCommitted.WithLabelValues(string(s.Mode), "created").Inc()
		slog.Info("book uploaded", "book_id", id, "operator", s.Operator, "file_kind", rec.FileKind)
		return Outcome{Kind: rec.FileKind, BookID: &id}, nil
	case errors.Is(err, models.ErrValidation):
		s.State = AwaitDescription
		return Outcome{Reprompt: true, Problem: err, Kind: rec.FileKind}, nil
	case errors.Is(err, models.ErrDuplicate), errors.Is(err, models.ErrNotFound):
		metrics.UploadCommitted.WithLabelValues(string(s.Mode), "rejected").Inc()
		cancel(s, err.Error())
		return Outcome{Kind: rec.FileKind}, err
	default:
		s.State = AwaitDescription
		return Outcome{Kind: rec.FileKind}, fmt.Errorf("commit upload: %w", err)
	}
}

// flush writes the queued records in one bulk call and ends the session.
func (m *Machine) flush(ctx context.Context, s *Session) Outcome {
	records := make([]models.NewBook, len(s.Queue))
	for i := range s.Queue {
		records[i] = s.Queue[i].newBook(*s.CategoryID, s.Operator)
	}

	var ok, failed int
	if len(records) > 0 {
		ok, failed = m.books.CreateBulk(ctx, records)
	}
	metrics.UploadCommitted.WithLabelValues(string(s.Mode), "created").Add(float64(ok))
	metrics.UploadCommitted.WithLabelValues(string(s.Mode), "rejected").Add(float64(failed))
	slog.Info("upload batch flushed", "operator", s.Operator, "mode", s.Mode, "succeeded", ok, "failed", failed)

	s.Queue = nil
	s.State = Done
	return Outcome{Succeeded: ok, Failed: failed}
}
