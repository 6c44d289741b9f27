package razy

import "context"

type contextKey int

const (
	distributorKey contextKey = iota
	payloadKey
)

// WithDistributor returns a context carrying the given distributor as the
// current one. Dispatch attaches this automatically, so handlers and
// nested peer calls can recover their owning distributor without any
// process-wide stack: context chaining gives the nesting for free.
func WithDistributor(ctx context.Context, d *Distributor) context.Context {
	return context.WithValue(ctx, distributorKey, d)
}

// DistributorFrom returns the current distributor carried by ctx, if any.
func DistributorFrom(ctx context.Context) (*Distributor, bool) {
	d, ok := ctx.Value(distributorKey).(*Distributor)
	return d, ok
}

// WithPayload attaches a transport-specific payload (an HTTP
// writer/request pair, CLI streams, ...) for route handlers to recover.
// The core stays transport-agnostic; front ends choose the payload type.
func WithPayload(ctx context.Context, payload any) context.Context {
	return context.WithValue(ctx, payloadKey, payload)
}

// PayloadFrom returns the transport payload carried by ctx, if any.
func PayloadFrom(ctx context.Context) any {
	return ctx.Value(payloadKey)
}
