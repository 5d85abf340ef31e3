package upload

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"librarybot/internal/models"
)

type fakeCategories struct {
	byID     map[uuid.UUID]*models.Category
	children map[uuid.UUID]bool
}

func newFakeCategories() *fakeCategories {
	return &fakeCategories{byID: map[uuid.UUID]*models.Category{}, children: map[uuid.UUID]bool{}}
}

func (f *fakeCategories) add(name string, parent *uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.byID[id] = &models.Category{ID: id, Name: name, ParentID: parent}
	if parent != nil {
		f.children[*parent] = true
	}
	return id
}

func (f *fakeCategories) FindByID(_ context.Context, id uuid.UUID) (*models.Category, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, models.NewNotFound("category", id)
	}
	return c, nil
}

func (f *fakeCategories) HasChildren(_ context.Context, id uuid.UUID) (bool, error) {
	return f.children[id], nil
}

type fakeBooks struct {
	mu        sync.Mutex
	refs      map[string]bool
	created   []models.NewBook
	bulkCalls int
	createErr error
}

func newFakeBooks() *fakeBooks {
	return &fakeBooks{refs: map[string]bool{}}
}

func (f *fakeBooks) FindByFileReference(_ context.Context, ref string) (*models.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refs[ref] {
		return &models.Book{FileReference: ref}, nil
	}
	return nil, &models.NotFoundError{Entity: "book", ID: ref}
}

func (f *fakeBooks) Create(_ context.Context, in models.NewBook) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	if err := in.Validate(); err != nil {
		return uuid.Nil, err
	}
	if f.refs[in.FileReference] {
		return uuid.Nil, &models.DuplicateError{Entity: "book", Field: "file_reference", Value: in.FileReference}
	}
	f.refs[in.FileReference] = true
	f.created = append(f.created, in)
	return uuid.New(), nil
}

func (f *fakeBooks) CreateBulk(ctx context.Context, records []models.NewBook) (int, int) {
	f.mu.Lock()
	f.bulkCalls++
	f.mu.Unlock()
	ok, failed := 0, 0
	for _, r := range records {
		if _, err := f.Create(ctx, r); err != nil {
			failed++
			continue
		}
		ok++
	}
	return ok, failed
}

// memSessions is a minimal SessionStore.
type memSessions struct {
	mu       sync.Mutex
	sessions map[models.ActorID]Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[models.ActorID]Session{}}
}

func (m *memSessions) Load(_ context.Context, op models.ActorID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[op]
	if !ok {
		return nil, ErrNoSession
	}
	return &s, nil
}

func (m *memSessions) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Operator] = *s
	return nil
}

func (m *memSessions) Delete(_ context.Context, op models.ActorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, op)
	return nil
}

func pdf(ref string) Event {
	return FileReceived(FileInfo{Reference: ref, MIMEType: "application/pdf", FileName: ref + ".pdf"})
}

func audio(ref string) Event {
	d := 90
	return FileReceived(FileInfo{Reference: ref, MIMEType: "audio/mpeg", FileName: ref + ".mp3", Duration: &d})
}
