package usecase

import (
	"github.com/oklog/ulid/v2"
)

// NewUserID returns a time-ordered unique identifier for a new account.
// ULIDs sort lexicographically by creation time, which keeps user listings
// and index pages naturally ordered.
func NewUserID() string {
	return ulid.Make().String()
}
