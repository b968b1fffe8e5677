// Package context carries request metadata set by the HTTP middleware down to the
// query engine, event headers and logs.
package context

import "context"

type requestKey struct{}

// Request describes the HTTP request a context belongs to.
type Request struct {
	ID       string
	Method   string
	Route    string
	RemoteIP string
	// Entity is the :entity route parameter of record routes.
	Entity string
}

func WithRequest(ctx context.Context, r Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

// RequestFrom returns the request of ctx, or the zero Request outside HTTP handling.
func RequestFrom(ctx context.Context) Request {
	r, _ := ctx.Value(requestKey{}).(Request)
	return r
}

func GetRequestID(ctx context.Context) string {
	return RequestFrom(ctx).ID
}

func GetEntity(ctx context.Context) string {
	return RequestFrom(ctx).Entity
}
