package api

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

// NewErrorInterceptor translates domain errors returned by RPC handlers
// into connect errors with the error-details metadata. Errors that are
// already connect errors pass through untouched.
func NewErrorInterceptor(logger zerolog.Logger) connect.UnaryInterceptorFunc {
	log := logger.With().Str("component", "api").Logger()
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			resp, err := next(ctx, req)
			if err == nil {
				return resp, nil
			}
			var cerr *connect.Error
			if errors.As(err, &cerr) {
				return nil, err
			}
			wrapped := ConnectError(err)
			if wrapped.Code() == connect.CodeInternal {
				log.Error().Err(err).Str("procedure", req.Spec().Procedure).Msg("rpc failed")
			}
			return nil, wrapped
		}
	}
}
