// Package id generates identifiers for desk positions.
package id

import "github.com/oklog/ulid/v2"

// New returns a fresh ULID. The library's default entropy source is
// monotonic within a millisecond, so position IDs sort in open order.
func New() string {
	return ulid.Make().String()
}
