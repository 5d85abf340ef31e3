// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"librarybot/internal/models"
)

// SessionStore persists sessions between events, keyed by operator.
// Load returns ErrNoSession when the operator has none.
type SessionStore interface {
	Load(ctx context.Context, operator models.ActorID) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, operator models.ActorID) error
}

// Manager owns the one-session-per-operator discipline. Events for the
// same operator are serialized; different operators never block each other.
type Manager struct {
	machine  *Machine
	sessions SessionStore

	mu    sync.Mutex
	locks map[models.ActorID]*sync.Mutex
}

// NewManager returns a Manager applying events with machine and keeping
// sessions in store.
func NewManager(machine *Machine, store SessionStore) *Manager {
	return &Manager{
		machine:  machine,
		sessions: store,
		locks:    make(map[models.ActorID]*sync.Mutex),
	}
}

func (m *Manager) lock(operator models.ActorID) func() {
	m.mu.Lock()
	l, ok := m.locks[operator]
	if !ok {
		l = &sync.Mutex{}
		m.locks[operator] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Start opens a new session for actor, discarding any stale one.
func (m *Manager) Start(ctx context.Context, actor models.Actor, mode Mode) (*Session, Outcome, error) {
	if !actor.CanManageCatalog() {
		return nil, Outcome{}, ErrNotPrivileged
	}
	unlock := m.lock(actor.ID)
	defer unlock()

	stale, err := m.sessions.Load(ctx, actor.ID)
	switch {
	case err == nil:
		slog.Info("discarding stale upload session",
			"operator", actor.ID,
			"state", stale.State,
			"queued", len(stale.Queue),
		)
	case !errors.Is(err, ErrNoSession):
		return nil, Outcome{}, fmt.Errorf("load upload session: %w", err)
	}

	s := NewSession(actor.ID, mode, m.machine.now())
	if err := m.sessions.Save(ctx, s); err != nil {
		return nil, Outcome{}, fmt.Errorf("save upload session: %w", err)
	}
	slog.Debug("upload session started", "operator", actor.ID, "mode", mode)
	return s, Outcome{State: s.State}, nil
}

// Handle applies one event to the operator's session. Finished sessions
// are removed from the store.
func (m *Manager) Handle(ctx context.Context, operator models.ActorID, ev Event) (Outcome, error) {
	unlock := m.lock(operator)
	defer unlock()

	s, err := m.sessions.Load(ctx, operator)
	if err != nil {
		return Outcome{}, err
	}

	out, applyErr := m.machine.Apply(ctx, s, ev)
	if s.State.Terminal() {
		if err := m.sessions.Delete(ctx, operator); err != nil {
			return out, fmt.Errorf("delete upload session: %w", err)
		}
		slog.Info("upload session ended", "operator", operator, "state", s.State, "reason", s.Reason)
		return out, applyErr
	}

	if err := m.sessions.Save(ctx, s); err != nil {
		return out, fmt.Errorf("save upload session: %w", err)
	}
	return out, applyErr
}

// Current returns the operator's active session.
func (m *Manager) Current(ctx context.Context, operator models.ActorID) (*Session, error) {
	return m.sessions.Load(ctx, operator)
}

// Cancel ends the operator's session, discarding anything not committed.
func (m *Manager) Cancel(ctx context.Context, operator models.ActorID) (Outcome, error) {
	return m.Handle(ctx, operator, Cancel())
}
