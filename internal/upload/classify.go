// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package upload

import (
	"strings"

	"librarybot/internal/models"
)

// Classify decides whether a received file is a PDF or an audio book.
// Anything else is a validation error the operator can retry.
func Classify(f FileInfo) (models.FileKind, error) {
	mime := strings.ToLower(strings.TrimSpace(f.MIMEType))
	switch {
	case mime == "application/pdf":
		return models.FileKindPDF, nil
	case strings.HasPrefix(mime, "audio/"), f.IsAudio:
		return models.FileKindAudio, nil
	default:
		return "", &models.ValidationError{Field: "file", Reason: "only PDF documents and audio files are accepted"}
	}
}
