package handlers

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"librarybot/internal/models"
	"librarybot/internal/upload"
)

// Limits on raw upload events, checked before the workflow sees them.
const (
	maxReferenceLen = 255
	maxCaptionLen   = 4096
	maxTextLen      = 4096
	maxFileNameLen  = 255
)

// validateEvent checks the shape of an upload event and returns the first
// problem found. Field content rules belong to the workflow.
func validateEvent(ev upload.Event) error {
	switch ev.Kind {
	case upload.EventCategorySelected:
		if ev.CategoryID == uuid.Nil {
			return &models.ValidationError{Field: "category_id", Reason: "is required"}
		}
	case upload.EventFileReceived:
		if ev.File == nil {
			return &models.ValidationError{Field: "file", Reason: "is required"}
		}
		if strings.TrimSpace(ev.File.Reference) == "" {
			return &models.ValidationError{Field: "file.reference", Reason: "is required"}
		}
		if len(ev.File.Reference) > maxReferenceLen {
			return &models.ValidationError{Field: "file.reference", Reason: "is too long"}
		}
		if utf8.RuneCountInString(ev.File.Caption) > maxCaptionLen {
			return &models.ValidationError{Field: "file.caption", Reason: "is too long"}
		}
		if utf8.RuneCountInString(ev.File.FileName) > maxFileNameLen {
			return &models.ValidationError{Field: "file.file_name", Reason: "is too long"}
		}
		if ev.File.Size != nil && *ev.File.Size < 0 {
			return &models.ValidationError{Field: "file.size", Reason: "must not be negative"}
		}
		if ev.File.Duration != nil && *ev.File.Duration < 0 {
			return &models.ValidationError{Field: "file.duration", Reason: "must not be negative"}
		}
		if ev.File.Duration != nil && *ev.File.Duration > models.BookDurationMax {
			return &models.ValidationError{Field: "file.duration", Reason: "is too long"}
		}
	case upload.EventText:
		if utf8.RuneCountInString(ev.Text) > maxTextLen {
			return &models.ValidationError{Field: "text", Reason: "is too long"}
		}
	case upload.EventSkip, upload.EventCancel, upload.EventFinish:
	default:
		return &models.ValidationError{Field: "kind", Reason: "unknown event kind " + strings.TrimSpace(string(ev.Kind))}
	}
	return nil
}
