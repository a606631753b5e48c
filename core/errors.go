package core

import "errors"

var (
	// ErrUnknownAgent indicates an action or state request for an agent id the
	// environment does not know.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrInvalidAgent indicates an agent whose description cannot be resolved
	// against the topology (missing facility, missing sku, bad agent type).
	ErrInvalidAgent = errors.New("invalid agent")
	// ErrNoTickContext indicates a tick context without metrics or snapshots.
	ErrNoTickContext = errors.New("incomplete tick context")
	// ErrLayoutMismatch indicates a record field does not have its declared width.
	ErrLayoutMismatch = errors.New("record does not match serialized layout")
	// ErrInvalidSettings indicates settings that cannot size the feature vectors.
	ErrInvalidSettings = errors.New("invalid settings")
)
