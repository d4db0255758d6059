// Package document defines the receiver of content inserted by updating requests.
//
// The Sink interface abstracts a tree of elements addressable by id.
// HTML is the default implementation on top of the golang.org/x/net/html tree.
package document

import (
	"fmt"
	"strings"
)

// Node is an element resolved by a Sink, its concrete type depends on the Sink implementation.
type Node any

// Position of inserted content relative to an element.
type Position string

const (
	// Before inserts content as previous siblings of the element.
	Before Position = "before"
	// After inserts content as next siblings of the element.
	After Position = "after"
	// Top inserts content as the first children of the element.
	Top Position = "top"
	// Bottom inserts content as the last children of the element.
	Bottom Position = "bottom"
)

// ParsePosition converts a case-insensitive name to a Position.
func ParsePosition(v string) (Position, error) {
	p := Position(strings.ToLower(strings.TrimSpace(v)))
	if !p.Valid() {
		return "", fmt.Errorf(`invalid insertion position "%s", expected one of: before, after, top, bottom`, v)
	}
	return p, nil
}

func (p Position) Valid() bool {
	switch p {
	case Before, After, Top, Bottom:
		return true
	default:
		return false
	}
}

// Sink is a tree of elements addressable by id.
type Sink interface {
	// Resolve finds the element by id.
	Resolve(id string) (Node, bool)
	// SetContent replaces all children of the element by the parsed content.
	SetContent(node Node, content string) error
	// InsertContent inserts the parsed content at the position relative to the element.
	InsertContent(node Node, position Position, content string) error
}
