// Package values contains domain value objects that encapsulate
// primitive types with validation and such.
package values

import (
	"fmt"

	"github.com/google/uuid"
)

// BuildID identifies one build invocation in logs and reports.
type BuildID struct {
	value uuid.UUID
}

// NewBuildID creates a new random build ID
func NewBuildID() BuildID {
	return BuildID{value: uuid.New()}
}

// ParseBuildID parses a string into a BuildID
func ParseBuildID(s string) (BuildID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return BuildID{}, fmt.Errorf("invalid build ID: %w", err)
	}
	return BuildID{value: id}, nil
}

// String returns the string representation
func (b BuildID) String() string {
	return b.value.String()
}

// IsZero returns true if this is the zero value
func (b BuildID) IsZero() bool {
	return b.value == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler
func (b BuildID) MarshalText() ([]byte, error) {
	return []byte(b.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *BuildID) UnmarshalText(data []byte) error {
	id, err := ParseBuildID(string(data))
	if err != nil {
		return err
	}
	*b = id
	return nil
}
