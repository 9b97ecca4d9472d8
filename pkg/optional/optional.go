// Package optional provides the single "maybe a value" type used wherever a
// lookup can come back empty: field extraction, timestamp parsing, numeric
// parsing and filter criteria.
//
// Absent values never match a non-null constraint and never contribute to an
// aggregate. Keeping that rule in one type avoids ad hoc nil/"" checks at each
// call site.
package optional

// Value holds either a T or nothing. The zero Value is absent.
type Value[T any] struct {
	v  T
	ok bool
}

// Some returns a present Value wrapping v.
func Some[T any](v T) Value[T] {
	return Value[T]{v: v, ok: true}
}

// None returns an absent Value.
func None[T any]() Value[T] {
	return Value[T]{}
}

// FromPtr converts a nil-able pointer (as produced by YAML/JSON decoding) into a Value.
func FromPtr[T any](p *T) Value[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

// Present reports whether v holds a value.
func (v Value[T]) Present() bool { return v.ok }

// Get returns the wrapped value and whether it was present.
func (v Value[T]) Get() (T, bool) { return v.v, v.ok }

// OrElse returns the wrapped value, or def when absent.
func (v Value[T]) OrElse(def T) T {
	if !v.ok {
		return def
	}
	return v.v
}

// Ptr returns a pointer to a copy of the value, or nil when absent.
func (v Value[T]) Ptr() *T {
	if !v.ok {
		return nil
	}
	c := v.v
	return &c
}

// Map applies f to a present value. Absent stays absent.
func Map[T, U any](v Value[T], f func(T) U) Value[U] {
	if !v.ok {
		return None[U]()
	}
	return Some(f(v.v))
}

// FlatMap applies f to a present value; f itself may yield absent.
func FlatMap[T, U any](v Value[T], f func(T) Value[U]) Value[U] {
	if !v.ok {
		return None[U]()
	}
	return f(v.v)
}

// Equal reports whether v is present and equal to want. An absent value is
// never equal to anything, which is the "does not match a non-null
// constraint" rule.
func Equal[T comparable](v Value[T], want T) bool {
	return v.ok && v.v == want
}
