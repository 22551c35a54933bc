package ctxutil

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrNoIdentity = errors.New("no verified identity")

type requestDataKey struct{}
type identityMemoKey struct{}

type RequestData struct {
	TokenString string
	UserID      uuid.UUID
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// VerifyFunc turns a bearer token into a user id.
type VerifyFunc func(ctx context.Context, token string) (uuid.UUID, error)

// identityMemo caches a single verification for the lifetime of one request
// context. It is created per request and never shared.
type identityMemo struct {
	once   sync.Once
	token  string
	verify VerifyFunc

	userID uuid.UUID
	err    error
}

func WithIdentityMemo(ctx context.Context, token string, verify VerifyFunc) context.Context {
	return context.WithValue(ctx, identityMemoKey{}, &identityMemo{token: token, verify: verify})
}

// CurrentUserID resolves the caller identity, verifying the token at most once
// per request.
func CurrentUserID(ctx context.Context) (uuid.UUID, error) {
	ctx = Default(ctx)
	if m, ok := ctx.Value(identityMemoKey{}).(*identityMemo); ok && m != nil {
		m.once.Do(func() {
			if m.token == "" || m.verify == nil {
				m.err = ErrNoIdentity
				return
			}
			m.userID, m.err = m.verify(ctx, m.token)
			if m.err == nil && m.userID == uuid.Nil {
				m.err = ErrNoIdentity
			}
		})
		return m.userID, m.err
	}
	if rd := GetRequestData(ctx); rd != nil && rd.UserID != uuid.Nil {
		return rd.UserID, nil
	}
	return uuid.Nil, ErrNoIdentity
}
