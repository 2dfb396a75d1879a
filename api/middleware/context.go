package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxOwnerID  contextKey = "owner_id"
	ctxTenantID contextKey = "tenant_id"
)

func UserIDFromContext(ctx context.Context) uuid.UUID {
	return uuidValue(ctx, ctxUserID)
}

func OwnerIDFromContext(ctx context.Context) uuid.UUID {
	return uuidValue(ctx, ctxOwnerID)
}

// TenantIDFromContext returns nil when the token carried no tenant.
func TenantIDFromContext(ctx context.Context) *uuid.UUID {
	id := uuidValue(ctx, ctxTenantID)
	if id == uuid.Nil {
		return nil
	}
	return &id
}

// WithActor injects the authenticated identity into the context.
func WithActor(ctx context.Context, userID, ownerID uuid.UUID, tenantID *uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxOwnerID, ownerID)
	if tenantID != nil {
		ctx = context.WithValue(ctx, ctxTenantID, *tenantID)
	}
	return ctx
}

func uuidValue(ctx context.Context, key contextKey) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(key).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
