package model

import "fmt"

// Optional is a tagged optional value. Absence means "this value was never
// produced" (for example, a conditional branch that did not run), which is a
// different statement than an empty file or an empty list. Consumers must
// branch on Present rather than substituting defaults.
type Optional[T any] struct {
	value   T
	present bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

// None is the absent value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Present reports whether a value was produced.
func (o Optional[T]) Present() bool { return o.present }

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.present }

// MustGet returns the value, panicking on absence. Reserve it for call sites
// where presence was already established.
func (o Optional[T]) MustGet() T {
	if !o.present {
		panic("model: MustGet on absent Optional")
	}
	return o.value
}

// OrElse returns the value when present, def otherwise.
func (o Optional[T]) OrElse(def T) T {
	if o.present {
		return o.value
	}
	return def
}

func (o Optional[T]) String() string {
	if !o.present {
		return "<absent>"
	}
	return fmt.Sprint(o.value)
}
