package ctxutil

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestCurrentUserIDVerifiesOncePerRequest(t *testing.T) {
	want := uuid.New()
	calls := 0
	verify := func(ctx context.Context, token string) (uuid.UUID, error) {
		calls++
		if token != "tok" {
			t.Fatalf("unexpected token %q", token)
		}
		return want, nil
	}

	ctx := WithIdentityMemo(context.Background(), "tok", verify)
	for i := 0; i < 3; i++ {
		got, err := CurrentUserID(ctx)
		if err != nil || got != want {
			t.Fatalf("CurrentUserID: got=%s err=%v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("verify calls: got=%d want=1", calls)
	}

	other := WithIdentityMemo(context.Background(), "tok", verify)
	if _, err := CurrentUserID(other); err != nil {
		t.Fatalf("second request: %v", err)
	}
	if calls != 2 {
		t.Fatalf("memo leaked across requests: calls=%d", calls)
	}
}

func TestCurrentUserIDWithoutIdentity(t *testing.T) {
	if _, err := CurrentUserID(context.Background()); !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	failing := func(ctx context.Context, token string) (uuid.UUID, error) {
		return uuid.Nil, errors.New("bad signature")
	}
	ctx := WithIdentityMemo(context.Background(), "tok", failing)
	if _, err := CurrentUserID(ctx); err == nil {
		t.Fatalf("expected verify error")
	}
}

func TestCurrentUserIDFallsBackToRequestData(t *testing.T) {
	id := uuid.New()
	ctx := WithRequestData(context.Background(), &RequestData{UserID: id})
	got, err := CurrentUserID(ctx)
	if err != nil || got != id {
		t.Fatalf("got=%s err=%v", got, err)
	}
}
