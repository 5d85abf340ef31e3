package models

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// CheckLength validates that s (after trimming) has between min and max
// runes. A min of 0 allows empty values.
func CheckLength(field, s string, min, max int) error {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n < min || n > max {
		if min == 0 {
			return &ValidationError{Field: field, Reason: fmt.Sprintf("must be at most %d characters", max)}
		}
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be %d-%d characters", min, max)}
	}
	return nil
}

// checkOptional validates an optional field, which may be nil.
func checkOptional(field string, s *string, max int) error {
	if s == nil {
		return nil
	}
	return CheckLength(field, *s, 0, max)
}

// Validate checks the category inputs and trims the name in place.
func (c *NewCategory) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	if err := CheckLength("name", c.Name, CategoryNameMin, CategoryNameMax); err != nil {
		return err
	}
	return checkOptional("description", c.Description, CategoryDescriptionMax)
}

// Validate checks the update fields that are set and trims the name.
func (u *CategoryUpdate) Validate() error {
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		u.Name = &name
		if err := CheckLength("name", name, CategoryNameMin, CategoryNameMax); err != nil {
			return err
		}
	}
	return checkOptional("description", u.Description, CategoryDescriptionMax)
}

// Validate checks the book inputs and trims the title in place.
func (b *NewBook) Validate() error {
	b.Title = strings.TrimSpace(b.Title)
	if err := CheckLength("title", b.Title, BookTitleMin, BookTitleMax); err != nil {
		return err
	}
	if strings.TrimSpace(b.FileReference) == "" {
		return &ValidationError{Field: "file_reference", Reason: "is required"}
	}
	if !b.FileKind.Valid() {
		return &ValidationError{Field: "file_kind", Reason: fmt.Sprintf("unknown file kind %q", b.FileKind)}
	}
	if err := checkOptional("author", b.Author, BookAuthorMax); err != nil {
		return err
	}
	if err := checkOptional("narrator", b.Narrator, BookNarratorMax); err != nil {
		return err
	}
	if err := checkOptional("description", b.Description, BookDescriptionMax); err != nil {
		return err
	}
	return checkFileSizes(b.DurationSeconds, b.SizeBytes)
}

// checkFileSizes bounds the optional duration and byte size.
func checkFileSizes(duration *int, size *int64) error {
	if duration != nil && *duration < 0 {
		return &ValidationError{Field: "duration", Reason: "must not be negative"}
	}
	if duration != nil && *duration > BookDurationMax {
		return &ValidationError{Field: "duration", Reason: fmt.Sprintf("must be at most %d seconds", BookDurationMax)}
	}
	if size != nil && *size < 0 {
		return &ValidationError{Field: "size", Reason: "must not be negative"}
	}
	return nil
}

// Validate checks the update fields that are set.
func (u *BookUpdate) Validate() error {
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		u.Title = &title
		if err := CheckLength("title", title, BookTitleMin, BookTitleMax); err != nil {
			return err
		}
	}
	if u.FileReference != nil && strings.TrimSpace(*u.FileReference) == "" {
		return &ValidationError{Field: "file_reference", Reason: "is required"}
	}
	if u.FileKind != nil && !u.FileKind.Valid() {
		return &ValidationError{Field: "file_kind", Reason: fmt.Sprintf("unknown file kind %q", *u.FileKind)}
	}
	if err := checkOptional("author", u.Author, BookAuthorMax); err != nil {
		return err
	}
	if err := checkOptional("narrator", u.Narrator, BookNarratorMax); err != nil {
		return err
	}
	if err := checkOptional("description", u.Description, BookDescriptionMax); err != nil {
		return err
	}
	return checkFileSizes(u.DurationSeconds, u.SizeBytes)
}
