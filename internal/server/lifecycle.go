package server

import "context"

// Lifecycle is the live view as the server drives it.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop()
}
