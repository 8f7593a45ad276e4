package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/internal/orders"
	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the caller role into the context.
func WithRole(ctx context.Context, role enums.ActorRole) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, string(role))
}

// ActorFromContext rebuilds the authenticated workflow actor. ok is false when
// Auth did not run or seeded an unusable identity.
func ActorFromContext(ctx context.Context) (orders.Actor, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	if err != nil {
		return orders.Actor{}, false
	}
	role := enums.ActorRole(RoleFromContext(ctx))
	if !role.IsValid() || role == enums.ActorRoleSystem {
		return orders.Actor{}, false
	}
	return orders.Actor{ID: id, Role: role}, true
}
