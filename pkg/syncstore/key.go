package syncstore

import (
	"strings"

	"github.com/uprent-dev/commutesync/internal/errors"
)

// TrackedKey names one independently synchronized value.
type TrackedKey[T any] struct {
	// Name is the persistence key in every area.
	Name string

	// Suffix derives the bridge topics for this key.
	Suffix string

	// Namespace prefixes the bridge topics. May be empty.
	Namespace string

	// Default is the value used before anything is known.
	Default T
}

// Key returns a TrackedKey with no topic namespace.
func Key[T any](name, suffix string, def T) TrackedKey[T] {
	return TrackedKey[T]{Name: name, Suffix: suffix, Default: def}
}

// WithNamespace returns a copy of k whose topics are prefixed by ns.
func (k TrackedKey[T]) WithNamespace(ns string) TrackedKey[T] {
	k.Namespace = ns
	return k
}

// Descriptor returns the untyped identity of k, as used by the bridge.
func (k TrackedKey[T]) Descriptor() Descriptor {
	return NewDescriptor(k.Name, k.Namespace, k.Suffix)
}

func (k TrackedKey[T]) validate() error {
	if strings.TrimSpace(k.Name) == "" {
		return errors.New("S071").WithDetail("name is required")
	}
	if strings.TrimSpace(k.Suffix) == "" {
		return errors.New("S071").WithDetail("suffix is required for " + k.Name)
	}
	return nil
}

// Descriptor is the type-erased identity of a tracked key: its
// persistence key and the three topics derived from its suffix.
type Descriptor struct {
	Name         string
	GetTopic     string
	SetTopic     string
	UpdatedTopic string
}

// NewDescriptor derives the topics for a key mechanically:
// ns+"GET_"+suffix, ns+"SET_"+suffix and ns+suffix+"_UPDATED".
func NewDescriptor(name, ns, suffix string) Descriptor {
	suffix = strings.ToUpper(suffix)
	return Descriptor{
		Name:         name,
		GetTopic:     ns + "GET_" + suffix,
		SetTopic:     ns + "SET_" + suffix,
		UpdatedTopic: ns + suffix + "_UPDATED",
	}
}
