package service

import "context"

type requestMetaKey struct{}

// RequestMeta identifies who triggered an operation. It is copied into audit events.
type RequestMeta struct {
	UserID    string
	UserEmail string
	IPAddress string
	UserAgent string
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}
