package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxBusinessID
	ctxRole
)

var ErrNoIdentity = errors.New("auth: identity not in context")

func WithIdentity(ctx context.Context, userID, businessID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxBusinessID, businessID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func value(ctx context.Context, key ctxKey) (string, error) {
	if s, ok := ctx.Value(key).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoIdentity
}

func UserID(ctx context.Context) (string, error)     { return value(ctx, ctxUserID) }
func BusinessID(ctx context.Context) (string, error) { return value(ctx, ctxBusinessID) }
func Role(ctx context.Context) (string, error)       { return value(ctx, ctxRole) }
