package shared

// Optional carries a collaborator that may be absent. Callers branch on
// Get instead of probing for nil.
type Optional[T any] struct {
	value T
	ok    bool
}

// Configured wraps an available collaborator.
func Configured[T any](value T) Optional[T] {
	return Optional[T]{value: value, ok: true}
}

// NotConfigured is the empty variant.
func NotConfigured[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the collaborator or ErrNotConfigured.
func (o Optional[T]) Get() (T, error) {
	if !o.ok {
		var zero T
		return zero, ErrNotConfigured
	}
	return o.value, nil
}

// IsConfigured reports whether a collaborator is present.
func (o Optional[T]) IsConfigured() bool { return o.ok }
