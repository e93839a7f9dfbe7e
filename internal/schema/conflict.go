package schema

import (
	"fmt"
	"strings"
)

// ConflictMode decides what happens to tables that already exist before a
// transfer.
type ConflictMode int

const (
	// ConflictNone keeps existing tables and rows; inserts skip duplicates.
	ConflictNone ConflictMode = iota
	// ConflictTruncate empties every table after it is ensured.
	ConflictTruncate
	// ConflictDrop drops every table before it is recreated.
	ConflictDrop
)

// ParseConflictMode accepts "none", "truncate" or "drop" (case-insensitive).
// The empty string is none.
func ParseConflictMode(s string) (ConflictMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ConflictNone, nil
	case "truncate":
		return ConflictTruncate, nil
	case "drop":
		return ConflictDrop, nil
	default:
		return ConflictNone, fmt.Errorf("unknown conflict mode %q (want none, truncate or drop)", s)
	}
}

func (m ConflictMode) String() string {
	switch m {
	case ConflictTruncate:
		return "truncate"
	case ConflictDrop:
		return "drop"
	default:
		return "none"
	}
}
