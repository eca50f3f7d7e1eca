// Package utils holds small generic helpers shared across packages.
package utils

// Ptr returns a pointer to v. Used for optional fields such as a record's
// measured distance.
func Ptr[T any](v T) *T {
	return &v
}

// Value dereferences v, returning the zero value when v is nil.
func Value[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}
