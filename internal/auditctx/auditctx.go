package auditctx

import "context"

// Methods recorded for actions that did not arrive through an HTTP credential.
const (
	MethodOAuth = "oauth"
	MethodCLI   = "cli"
)

// Actor describes who issued a request and how they authenticated. APIKeyID is set
// only when an API key authenticated the request.
type Actor struct {
	UserID    string
	Email     string
	Method    string
	APIKeyID  string
	IPAddress string
	UserAgent string
}

type actorContextKey struct{}

// WithActor returns a derived context carrying actor metadata for audit logging.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts previously stored actor metadata from the context.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
