// Package models defines the data structures that map to database tables
// and provides the core types used throughout the application.
package models

import "strconv"

// ActorID identifies the chat user who performed an action. It is supplied
// by the frontend and never interpreted beyond equality.
type ActorID int64

// String returns the decimal form used in session keys and logs.
func (a ActorID) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// Actor is an operator as resolved by the frontend. Privileged is the
// result of the frontend's own admin check; the core only reads it.
type Actor struct {
	ID         ActorID `json:"id"`
	Privileged bool    `json:"privileged"`
}

// CanManageCatalog reports whether the actor may create, edit or delete
// catalog entries.
func (a Actor) CanManageCatalog() bool {
	return a.Privileged
}
