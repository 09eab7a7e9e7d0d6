package auditctx

import "context"

// Actor captures who initiated a request and where it was sent.
type Actor struct {
	UserID    string
	Username  string
	IPAddress string
	UserAgent string
	Method    string
	Path      string
}

type actorContextKey struct{}

// WithActor returns a context carrying actor for downstream audit logging.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts previously stored actor metadata.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
