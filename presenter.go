package resultnav

import "context"

// Presenter is the presentation layer that owns unit lifetimes. The navigator
// asks it to build, show and close units but never renders anything itself.
type Presenter interface {
	// CreateUnit instantiates a unit of the given kind.
	CreateUnit(ctx context.Context, kind string, param any) (any, error)
	// Display shows a unit created by CreateUnit.
	Display(ctx context.Context, unit any) error
	// Close tears a unit down and reports whether it was closed.
	Close(ctx context.Context, unit any) (bool, error)
}
