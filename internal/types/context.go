package types

import "context"

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeWorker ActorType = "worker"
	ActorTypeAdmin  ActorType = "admin"
)

// Actor represents the authenticated entity performing an operation.
// Authentication itself is owned by the edge collaborator; this service
// trusts the identity headers it forwards.
type Actor struct {
	AccountID string
	Type      ActorType
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// GetAccountID is a convenience accessor for the authenticated account.
func GetAccountID(ctx context.Context) (string, bool) {
	actor, ok := GetActor(ctx)
	if !ok || actor.AccountID == "" {
		return "", false
	}
	return actor.AccountID, true
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
