package customer

import "context"

type PrincipalType string

const (
	PrincipalBackoffice  PrincipalType = "backoffice"
	PrincipalFrontOffice PrincipalType = "frontoffice"
)

// Actor is the authenticated principal driving a status change.
type Actor struct {
	ID   string
	Type PrincipalType
}

func (a Actor) IsBackoffice() bool {
	return a.Type == PrincipalBackoffice
}

type actorKey struct{}

func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
