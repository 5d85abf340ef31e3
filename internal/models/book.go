// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation limits for book fields.
const (
	BookTitleMin       = 2
	BookTitleMax       = 255
	BookAuthorMax      = 100
	BookNarratorMax    = 100
	BookDescriptionMax = 1000

	// BookDurationMax is the largest duration the INTEGER column holds.
	BookDurationMax = math.MaxInt32
)

// FileKind is the type of file a book record points at.
type FileKind string

const (
	FileKindPDF   FileKind = "pdf"
	FileKindAudio FileKind = "audio"
)

// Valid returns true for the kinds the catalog stores.
func (k FileKind) Valid() bool {
	return k == FileKindPDF || k == FileKindAudio
}

func (k FileKind) String() string {
	return string(k)
}

// ParseFileKind converts a user or database supplied value into a FileKind.
// Matching ignores case and surrounding whitespace.
func ParseFileKind(s string) (FileKind, error) {
	k := FileKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", &ValidationError{Field: "file_kind", Reason: fmt.Sprintf("unknown file kind %q", s)}
	}
	return k, nil
}

// Book is a catalog entry filed under exactly one category. The file itself
// lives with the chat platform; FileReference is its opaque handle.
type Book struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	FileReference   string     `json:"file_reference"`
	FileKind        FileKind   `json:"file_kind"`
	CategoryID      uuid.UUID  `json:"category_id"`
	Author          *string    `json:"author,omitempty"`
	Narrator        *string    `json:"narrator,omitempty"`
	Description     *string    `json:"description,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	SizeBytes       *int64     `json:"size_bytes,omitempty"`
	UploadedBy      ActorID    `json:"uploaded_by"`
	DownloadCount   int        `json:"download_count"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	IsDeleted       bool       `json:"is_deleted"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`

	// Virtual field populated by joins against categories.
	CategoryName *string `json:"category_name,omitempty"`
}

// IsAudio returns true if the book is an audio book.
func (b *Book) IsAudio() bool {
	return b.FileKind == FileKindAudio
}

// DurationText formats the duration as h:mm:ss, or m:ss below an hour.
// Returns an empty string when the duration is unknown.
func (b *Book) DurationText() string {
	if b.DurationSeconds == nil || *b.DurationSeconds <= 0 {
		return ""
	}
	d := *b.DurationSeconds
	hours, minutes, seconds := d/3600, (d%3600)/60, d%60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// HumanSize returns a human-readable file size string.
func (b *Book) HumanSize() string {
	if b.SizeBytes == nil {
		return ""
	}
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	size := *b.SizeBytes
	switch {
	case size >= gb:
		return fmt.Sprintf("%.1f GB", float64(size)/float64(gb))
	case size >= mb:
		return fmt.Sprintf("%.1f MB", float64(size)/float64(mb))
	case size >= kb:
		return fmt.Sprintf("%.0f KB", float64(size)/float64(kb))
	default:
		return fmt.Sprintf("%d B", size)
	}
}

// NewBook carries the inputs for creating a book record.
type NewBook struct {
	Title           string
	FileReference   string
	FileKind        FileKind
	CategoryID      uuid.UUID
	UploadedBy      ActorID
	Author          *string
	Narrator        *string
	Description     *string
	DurationSeconds *int
	SizeBytes       *int64
}

// BookUpdate lists the fields to change on a book. Nil pointers leave the
// column untouched.
type BookUpdate struct {
	Title           *string
	Author          *string
	Narrator        *string
	Description     *string
	CategoryID      *uuid.UUID
	FileReference   *string
	FileKind        *FileKind
	SizeBytes       *int64
	DurationSeconds *int
}

// IsEmpty reports whether the update would change nothing.
func (u BookUpdate) IsEmpty() bool {
	return u.Title == nil && u.Author == nil && u.Narrator == nil &&
		u.Description == nil && u.CategoryID == nil && u.FileReference == nil &&
		u.FileKind == nil && u.SizeBytes == nil && u.DurationSeconds == nil
}

// BookSortField names a column books can be ordered by.
type BookSortField string

const (
	SortByTitle         BookSortField = "title"
	SortByCreatedAt     BookSortField = "created_at"
	SortByDownloadCount BookSortField = "download_count"
	SortByAuthor        BookSortField = "author"
)

// BookSort describes the ordering of a book listing. The zero value sorts
// newest first.
type BookSort struct {
	By   BookSortField
	Desc bool
}

// DefaultBookSort orders by creation time, newest first.
var DefaultBookSort = BookSort{By: SortByCreatedAt, Desc: true}

// BookFilter narrows a book listing. OnlyDeleted selects the trash view and
// implies IncludeDeleted.
type BookFilter struct {
	CategoryID     *uuid.UUID
	Kind           *FileKind
	IncludeDeleted bool
	OnlyDeleted    bool
}
