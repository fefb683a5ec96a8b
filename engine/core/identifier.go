package core

import "github.com/google/uuid"

// ResourceID tags engine-owned GPU resources so log lines can be correlated.
type ResourceID string

func NewResourceID() ResourceID {
	return ResourceID(uuid.NewString())
}

// Short returns the first block of the id.
func (id ResourceID) Short() string {
	if len(id) < 8 {
		return string(id)
	}
	return string(id[:8])
}
