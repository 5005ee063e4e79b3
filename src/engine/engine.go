// backend/src/engine/engine.go
package engine

import (
	"github.com/google/uuid"
)

// Engine is the pure calculation core. It replays a project's transaction
// log into point-in-time results and never touches storage or the network.
// All mutation happens on working copies; caller data is never modified.
type Engine struct {
	newID func() string
}

// New returns an Engine with the default uuid id generator for
// shareholdings synthesized during replay (loan conversions, transfers).
func New() *Engine {
	return &Engine{newID: uuid.NewString}
}

// NewWithIDGenerator returns an Engine whose synthesized shareholding ids
// come from the given generator. Tests use this for deterministic output.
func NewWithIDGenerator(newID func() string) *Engine {
	return &Engine{newID: newID}
}
