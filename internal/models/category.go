// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package models

import (
	"time"

	"github.com/google/uuid"
)

// Validation limits for category fields.
const (
	CategoryNameMin        = 2
	CategoryNameMax        = 100
	CategoryDescriptionMax = 500
)

// PathSeparator joins category names in a breadcrumb path.
const PathSeparator = " → "

// Category is a node in the catalog tree. A nil ParentID marks a main
// (root) category.
type Category struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	ParentID    *uuid.UUID `json:"parent_id"`
	CreatedBy   ActorID    `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	IsDeleted   bool       `json:"is_deleted"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// Virtual field populated by store methods that join book counts.
	BookCount int `json:"book_count"`
}

// IsMain returns true if the category has no parent.
func (c *Category) IsMain() bool {
	return c.ParentID == nil
}

// NewCategory carries the inputs for creating a category.
type NewCategory struct {
	Name        string
	Description *string
	ParentID    *uuid.UUID
	CreatedBy   ActorID
}

// CategoryUpdate lists the fields to change on a category. Nil pointers
// leave the column untouched. MakeRoot moves the category to the top level
// and takes precedence over ParentID.
type CategoryUpdate struct {
	Name        *string
	Description *string
	ParentID    *uuid.UUID
	MakeRoot    bool
}

// IsEmpty reports whether the update would change nothing.
func (u CategoryUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.ParentID == nil && !u.MakeRoot
}
