package api

import (
	"context"
	"errors"
	"testing"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"

	"github.com/identra/identra/pkg/domain"
)

func TestErrorInterceptor(t *testing.T) {
	interceptor := NewErrorInterceptor(zerolog.Nop())

	t.Run("WrapsDomainErrors", func(t *testing.T) {
		next := connect.UnaryFunc(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			return nil, domain.Unauthenticated(domain.CodeTokenExpired, "token expired")
		})
		_, err := interceptor(next)(context.Background(), connect.NewRequest(&struct{}{}))

		var cerr *connect.Error
		if !errors.As(err, &cerr) {
			t.Fatalf("err = %v, want connect error", err)
		}
		if cerr.Code() != connect.CodeUnauthenticated {
			t.Errorf("code = %v, want %v", cerr.Code(), connect.CodeUnauthenticated)
		}
	})

	t.Run("PassesConnectErrorsThrough", func(t *testing.T) {
		original := connect.NewError(connect.CodeResourceExhausted, errors.New("quota"))
		next := connect.UnaryFunc(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			return nil, original
		})
		_, err := interceptor(next)(context.Background(), connect.NewRequest(&struct{}{}))

		var cerr *connect.Error
		if !errors.As(err, &cerr) || cerr != original {
			t.Fatalf("err = %v, want the original connect error", err)
		}
	})

	t.Run("SuccessUntouched", func(t *testing.T) {
		next := connect.UnaryFunc(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			return connect.NewResponse(&struct{}{}), nil
		})
		resp, err := interceptor(next)(context.Background(), connect.NewRequest(&struct{}{}))
		if err != nil || resp == nil {
			t.Fatalf("resp = %v, err = %v", resp, err)
		}
	})
}

func TestConnectOptionsCarryInterceptor(t *testing.T) {
	rt := NewRouter(nil, nil, nil, nil, nil, nil, zerolog.Nop())
	if len(rt.ConnectOptions()) == 0 {
		t.Fatal("connect handler options must carry the error interceptor")
	}
}
