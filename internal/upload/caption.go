// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package upload

import (
	"regexp"
	"strings"
)

// Caption holds the fields recovered from a file caption.
type Caption struct {
	Title       string
	Author      *string
	Narrator    *string
	Description *string
}

var (
	captionTitle       = regexp.MustCompile(`(?i)^(kitob|nom|title)\s*:\s*`)
	captionAuthor      = regexp.MustCompile(`(?i)^(muallif|author|yozuvchi)\s*:\s*`)
	captionNarrator    = regexp.MustCompile(`(?i)^(hikoyachi|narrator)\s*:\s*`)
	captionDescription = regexp.MustCompile(`(?i)^(tavsif|description)\s*:\s*`)
	mediaExtension     = regexp.MustCompile(`(?i)\.(pdf|mp3|m4a|m4b|ogg|wav|flac)$`)
)

// ParseCaption extracts book fields from a caption. Three layouts are
// understood:
//
//	Title: Sonnets            Sonnets | Shakespeare | Narrator     Sonnets
//	Author: Shakespeare
//	Description: ...
//
// In the multi-line layout the first unlabeled line is the title. When no
// title can be found the file name, minus a media extension, is used.
func ParseCaption(caption, fileName string) Caption {
	var c Caption
	caption = strings.TrimSpace(caption)

	switch {
	case caption == "":
	case strings.Contains(caption, "\n"):
		for _, line := range strings.Split(caption, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			switch {
			case captionTitle.MatchString(line):
				c.Title = captionTitle.ReplaceAllString(line, "")
			case captionAuthor.MatchString(line):
				c.Author = optional(captionAuthor.ReplaceAllString(line, ""))
			case captionNarrator.MatchString(line):
				c.Narrator = optional(captionNarrator.ReplaceAllString(line, ""))
			case captionDescription.MatchString(line):
				c.Description = optional(captionDescription.ReplaceAllString(line, ""))
			case c.Title == "":
				c.Title = line
			}
		}
	case strings.Contains(caption, "|"):
		parts := strings.Split(caption, "|")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		c.Title = parts[0]
		if len(parts) > 1 {
			c.Author = optional(parts[1])
		}
		if len(parts) > 2 {
			c.Narrator = optional(parts[2])
		}
	default:
		c.Title = caption
	}

	if c.Title == "" && fileName != "" {
		c.Title = strings.TrimSpace(mediaExtension.ReplaceAllString(strings.TrimSpace(fileName), ""))
	}
	return c
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
