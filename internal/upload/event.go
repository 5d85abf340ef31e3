// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package upload

import "github.com/google/uuid"

// EventKind tags an Event.
type EventKind string

const (
	EventCategorySelected EventKind = "category_selected"
	EventFileReceived     EventKind = "file_received"
	EventText             EventKind = "text"
	EventSkip             EventKind = "skip"
	EventCancel           EventKind = "cancel"
	EventFinish           EventKind = "finish"
)

// Event is one operator input. Only the fields matching Kind are read.
type Event struct {
	Kind       EventKind `json:"kind"`
	CategoryID uuid.UUID `json:"category_id,omitempty"`
	File       *FileInfo `json:"file,omitempty"`
	Text       string    `json:"text,omitempty"`
}

// FileInfo describes a file as delivered by the chat platform.
type FileInfo struct {
	Reference string `json:"reference"`
	MIMEType  string `json:"mime_type,omitempty"`
	FileName  string `json:"file_name,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Size      *int64 `json:"size,omitempty"`
	Duration  *int   `json:"duration,omitempty"`
	// IsAudio is set when the platform delivered the file as an audio
	// attachment rather than a document.
	IsAudio bool `json:"is_audio,omitempty"`
}

func CategorySelected(id uuid.UUID) Event { return Event{Kind: EventCategorySelected, CategoryID: id} }

func FileReceived(f FileInfo) Event { return Event{Kind: EventFileReceived, File: &f} }

func TextReceived(text string) Event { return Event{Kind: EventText, Text: text} }

func Skip() Event { return Event{Kind: EventSkip} }

func Cancel() Event { return Event{Kind: EventCancel} }

func Finish() Event { return Event{Kind: EventFinish} }
