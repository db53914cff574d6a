package enums

import (
	"fmt"
	"slices"
	"strings"
)

// valueSet is the closed list of values one enum type accepts.
type valueSet[T ~string] struct {
	kind   string
	values []T
	// fold normalises raw input before lookup; nil means exact match.
	fold func(string) string
}

func newValueSet[T ~string](kind string, values ...T) valueSet[T] {
	return valueSet[T]{kind: kind, values: values}
}

func (s valueSet[T]) folding(fold func(string) string) valueSet[T] {
	s.fold = fold
	return s
}

func (s valueSet[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

func (s valueSet[T]) parse(raw string) (T, error) {
	v := raw
	if s.fold != nil {
		v = s.fold(raw)
	}
	if s.has(T(v)) {
		return T(v), nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", s.kind, raw)
}

func upperTrim(v string) string { return strings.ToUpper(strings.TrimSpace(v)) }

func lowerTrim(v string) string { return strings.ToLower(strings.TrimSpace(v)) }
