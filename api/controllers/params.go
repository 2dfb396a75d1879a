package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/invoice-ledger/api/middleware"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
)

type actor struct {
	UserID   uuid.UUID
	OwnerID  uuid.UUID
	TenantID *uuid.UUID
}

func actorFromRequest(r *http.Request) (actor, error) {
	ctx := r.Context()
	a := actor{
		UserID:   middleware.UserIDFromContext(ctx),
		OwnerID:  middleware.OwnerIDFromContext(ctx),
		TenantID: middleware.TenantIDFromContext(ctx),
	}
	if a.UserID == uuid.Nil || a.OwnerID == uuid.Nil {
		return actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "owner context missing")
	}
	return a, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}
