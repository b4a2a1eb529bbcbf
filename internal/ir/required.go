package ir

import (
	"slices"
)

// RequiredSet is a set of symbols partitioned by category. Every slice is
// kept sorted ascending and free of duplicates; use the constructors and set
// operations rather than appending directly.
type RequiredSet struct {
	StateVariables  []string `json:"state_variables"`
	Parameters      []string `json:"parameters"`
	Ports           []string `json:"ports"`
	Constants       []string `json:"constants"`
	RandomVariables []string `json:"random_variables"`
	Aliases         []string `json:"aliases"`
}

// NewRequiredSet builds a normalized set from keys.
func NewRequiredSet(keys ...SymbolKey) RequiredSet {
	var rs RequiredSet
	for _, k := range keys {
		if p := rs.slot(k.Category); p != nil {
			*p = append(*p, k.Name)
		}
	}
	rs.normalize()
	return rs
}

func (rs *RequiredSet) slot(c Category) *[]string {
	switch c {
	case StateVariable:
		return &rs.StateVariables
	case Parameter:
		return &rs.Parameters
	case Port:
		return &rs.Ports
	case Constant:
		return &rs.Constants
	case RandomVariable:
		return &rs.RandomVariables
	case Alias:
		return &rs.Aliases
	}
	return nil
}

func (rs *RequiredSet) normalize() {
	for _, c := range Categories {
		p := rs.slot(c)
		slices.Sort(*p)
		*p = slices.Compact(*p)
		if len(*p) == 0 {
			*p = nil
		}
	}
}

// Names returns the sorted names of one category.
func (rs RequiredSet) Names(c Category) []string {
	if p := rs.slot(c); p != nil {
		return *p
	}
	return nil
}

// Contains reports whether key is in the set.
func (rs RequiredSet) Contains(key SymbolKey) bool {
	_, found := slices.BinarySearch(rs.Names(key.Category), key.Name)
	return found
}

// Len is the total number of symbols across categories.
func (rs RequiredSet) Len() int {
	n := 0
	for _, c := range Categories {
		n += len(rs.Names(c))
	}
	return n
}

// IsEmpty reports whether the set holds no symbols.
func (rs RequiredSet) IsEmpty() bool {
	return rs.Len() == 0
}

// Keys lists every symbol in emission order: categories in fixed order,
// names ascending within a category.
func (rs RequiredSet) Keys() []SymbolKey {
	keys := make([]SymbolKey, 0, rs.Len())
	for _, c := range Categories {
		for _, name := range rs.Names(c) {
			keys = append(keys, SymbolKey{Category: c, Name: name})
		}
	}
	return keys
}

func (rs RequiredSet) keyStrings() []any {
	keys := rs.Keys()
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// Union returns rs ∪ other.
func (rs RequiredSet) Union(other RequiredSet) RequiredSet {
	return NewRequiredSet(append(rs.Keys(), other.Keys()...)...)
}

// Minus returns rs − other.
func (rs RequiredSet) Minus(other RequiredSet) RequiredSet {
	var keys []SymbolKey
	for _, k := range rs.Keys() {
		if !other.Contains(k) {
			keys = append(keys, k)
		}
	}
	return NewRequiredSet(keys...)
}

// Intersect returns rs ∩ other.
func (rs RequiredSet) Intersect(other RequiredSet) RequiredSet {
	var keys []SymbolKey
	for _, k := range rs.Keys() {
		if other.Contains(k) {
			keys = append(keys, k)
		}
	}
	return NewRequiredSet(keys...)
}

// IsSubsetOf reports whether every symbol of rs is in other.
func (rs RequiredSet) IsSubsetOf(other RequiredSet) bool {
	for _, k := range rs.Keys() {
		if !other.Contains(k) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same symbols.
func (rs RequiredSet) Equal(other RequiredSet) bool {
	return slices.Equal(rs.Keys(), other.Keys())
}
