package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxTenantID ctxKey = iota
	ctxActorID
	ctxRole
)

func WithIdentity(ctx context.Context, tenantID, actorID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxTenantID, tenantID)
	ctx = context.WithValue(ctx, ctxActorID, actorID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func TenantID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxTenantID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("tenant_id not in context")
}

func ActorID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxActorID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("actor_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}
