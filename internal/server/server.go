package server

import "context"

// Server is a listener whose lifetime is driven by the application lifecycle.
// Start must return once the listener is bound; Stop drains in-flight requests.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Addr() string
}
