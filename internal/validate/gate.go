package validate

import (
	"context"

	"github.com/fyrsmithlabs/brdforge/internal/signal"
)

// State is what a gate inspects: the latest content of every section of a
// session.
type State struct {
	SessionID string
	Sections  map[string]string
}

// Gate checks one property of a generated document.
type Gate interface {
	// Name returns the gate identifier.
	Name() string

	// Check returns the flags raised for state. The validator fills in ID,
	// SessionID and CreatedAt.
	Check(ctx context.Context, state State) ([]signal.ValidationFlag, error)
}
