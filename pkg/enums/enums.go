// Package enums holds the string-backed enumerations persisted in Postgres
// and exchanged with the payment gateway.
package enums

import "slices"

// set is the closed list of values an enumeration accepts.
type set[T ~string] []T

func (s set[T]) has(v T) bool {
	return slices.Contains(s, v)
}
