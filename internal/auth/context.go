package auth

import "context"

type contextKey string

const providerKey contextKey = "authProvider"

// WithProvider stores the browser's provider in ctx.
func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, providerKey, p)
}

// FromContext returns the provider stored by WithProvider, or nil.
func FromContext(ctx context.Context) *Provider {
	p, _ := ctx.Value(providerKey).(*Provider)
	return p
}
