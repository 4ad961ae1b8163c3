package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/Leganyst/visit-scheduler/internal/audit"
	"github.com/Leganyst/visit-scheduler/internal/model"
)

type ctxKey struct{}

// ActorFromClaims переводит проверенный токен в актора журнала аудита.
func ActorFromClaims(c Claims) audit.Actor {
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return audit.System()
	}
	t := model.ActorSubcontractor
	if c.Role == RoleAdmin {
		t = model.ActorAdmin
	}
	return audit.Actor{Type: t, ID: &id}
}

func WithActor(ctx context.Context, a audit.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// ActorFrom возвращает актора запроса; ok=false для неаутентифицированных вызовов.
func ActorFrom(ctx context.Context) (audit.Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(audit.Actor)
	return a, ok
}
