package network

import "context"

// Transport is the network stack collaborator. Every method must honour ctx.
type Transport interface {
	// Connect associates with the access point and returns the assigned
	// address.
	Connect(ctx context.Context, creds Credentials) (string, error)
	Disconnect(ctx context.Context) error
	// Scan returns visible network names.
	Scan(ctx context.Context) ([]string, error)
	// Connected reports whether the link is currently up.
	Connected(ctx context.Context) bool
}

// TransportFactory opens the transport on the actor goroutine.
type TransportFactory func() (Transport, error)
