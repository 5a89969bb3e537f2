package syncstore

// Origin tells subscribers where a change came from.
type Origin int

const (
	// OriginReplay is the current value delivered on Subscribe.
	OriginReplay Origin = iota

	// OriginLocal is a Set made in this context.
	OriginLocal

	// OriginExternal is a value received from another context.
	OriginExternal
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginReplay:
		return "replay"
	case OriginLocal:
		return "local"
	case OriginExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Change is delivered to subscribers for every value change.
type Change[T any] struct {
	Key    string
	Value  T
	Origin Origin
}

// State is the reconciliation state of a store.
type State int

const (
	StateLoading State = iota
	StateReconciling
	StateSynced
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReconciling:
		return "reconciling"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// Context identifies the execution context a store runs in.
type Context int

const (
	// ContextExtension has direct access to the authoritative area.
	ContextExtension Context = iota + 1

	// ContextPage reaches the extension only through messages.
	ContextPage
)

// String returns the context name.
func (c Context) String() string {
	switch c {
	case ContextExtension:
		return "extension"
	case ContextPage:
		return "page"
	default:
		return "unknown"
	}
}
