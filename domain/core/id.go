package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// RunID identifies one sensitivity or simplification run.
type RunID ID

func NewRunID() RunID { return RunID(NewID()) }

func (id RunID) String() string { return ID(id).String() }

// ParseRunID parses a string into RunID
func ParseRunID(s string) (RunID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("run ID cannot be empty")
	}
	return RunID(s), nil
}

// ActivityID addresses a node in an activity graph arena. It is stable for
// the lifetime of the graph.
type ActivityID int

// NoActivity is the zero-value sentinel for "no node".
const NoActivity ActivityID = -1

func (id ActivityID) Valid() bool { return id >= 0 }

// MethodKey is the opaque key of an impact method (e.g. "climate change").
type MethodKey string

func (m MethodKey) String() string { return string(m) }

// ParseMethodKey parses a string into MethodKey
func ParseMethodKey(s string) (MethodKey, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("method key cannot be empty")
	}
	return MethodKey(strings.TrimSpace(s)), nil
}

// ParseMethodKeys parses a comma separated list of method keys, preserving order.
func ParseMethodKeys(s string) ([]MethodKey, error) {
	var keys []MethodKey
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		key, err := ParseMethodKey(part)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no method keys in %q", s)
	}
	return keys, nil
}
