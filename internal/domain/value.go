package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is an observed quantity that is either present or explicitly
// unavailable. The zero Value is unavailable.
type Value[T any] struct {
	v     T
	known bool
}

// Known returns a present value.
func Known[T any](v T) Value[T] {
	return Value[T]{v: v, known: true}
}

// Unavailable returns an explicitly missing value.
func Unavailable[T any]() Value[T] {
	return Value[T]{}
}

// Get returns the value and whether it is present.
func (x Value[T]) Get() (T, bool) {
	return x.v, x.known
}

// Available reports whether the value is present.
func (x Value[T]) Available() bool {
	return x.known
}

func (x Value[T]) String() string {
	if !x.known {
		return "unavailable"
	}
	return fmt.Sprint(x.v)
}

// MarshalJSON encodes unavailable values as null.
func (x Value[T]) MarshalJSON() ([]byte, error) {
	if !x.known {
		return []byte("null"), nil
	}
	return json.Marshal(x.v)
}

// UnmarshalJSON decodes null as unavailable.
func (x *Value[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*x = Value[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*x = Known(v)
	return nil
}
