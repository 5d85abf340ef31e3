// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package upload implements the guided upload workflow: a per-operator
// state machine that collects book records across several chat turns and
// commits them to the catalog store. Single, bulk-by-caption and guided
// batch uploads are all driven by the same transition function.
package upload

import (
	"fmt"
	"strings"
)

// State is a step of the upload workflow.
type State int

const (
	SelectCategory State = iota
	SelectSubcategory
	AwaitFile
	AwaitTitle
	AwaitAuthor
	AwaitNarrator
	AwaitDescription
	Committed
	Done
	Cancelled
)

var stateNames = [...]string{
	SelectCategory:    "select_category",
	SelectSubcategory: "select_subcategory",
	AwaitFile:         "await_file",
	AwaitTitle:        "await_title",
	AwaitAuthor:       "await_author",
	AwaitNarrator:     "await_narrator",
	AwaitDescription:  "await_description",
	Committed:         "committed",
	Done:              "done",
	Cancelled:         "cancelled",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether the session has ended.
func (s State) Terminal() bool {
	return s == Done || s == Cancelled
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown upload state %q", b)
}

// Mode selects how files are turned into records.
type Mode string

const (
	// ModeSingle collects one record through the prompts; committing ends
	// the session.
	ModeSingle Mode = "single"
	// ModeBulk parses every received file from its caption or file name
	// and queues it without prompting.
	ModeBulk Mode = "bulk"
	// ModeBatch walks each file through the prompts, queues it and loops
	// back for the next file until Finish.
	ModeBatch Mode = "batch"
)

// ParseMode validates a mode name. An empty name means ModeSingle.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeSingle, nil
	case ModeSingle, ModeBulk, ModeBatch:
		return m, nil
	default:
		return "", fmt.Errorf("unknown upload mode %q", s)
	}
}

// queues reports whether the mode accumulates records until Finish.
func (m Mode) queues() bool {
	return m == ModeBulk || m == ModeBatch
}
