package model

import "github.com/oklog/ulid/v2"

// NewID generates a new ULID string for workflows, error records and
// artifacts. ULIDs sort by creation time, which keeps store listings stable.
func NewID() string {
	return ulid.Make().String()
}
