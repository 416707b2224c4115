package multitenancy

import (
	"context"
	"net/http"
	"strings"

	"github.com/identra/identra/pkg/domain"
)

// ErrNoInstance is returned when a call reaches tenant-scoped code without
// an instance ID in its context.
var ErrNoInstance = domain.Unauthenticated("TENANT-NoInstance", "instance not resolved for request")

// InstanceHeader carries an explicit instance ID, taking precedence over
// host-based resolution. Meant for trusted internal callers.
const InstanceHeader = "x-identra-instance"

// InstanceResolver maps a request host to an instance ID.
type InstanceResolver interface {
	InstanceIDByHost(ctx context.Context, host string) (string, error)
}

// InstanceResolverFunc adapts a function to an InstanceResolver.
type InstanceResolverFunc func(ctx context.Context, host string) (string, error)

func (f InstanceResolverFunc) InstanceIDByHost(ctx context.Context, host string) (string, error) {
	return f(ctx, host)
}

// ResolveInstance is HTTP middleware that establishes the tenant context:
// the explicit header wins, otherwise the request host is resolved through
// the instance domain projection. Requests that resolve to no instance are
// rejected before any handler runs.
func ResolveInstance(resolver InstanceResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if instanceID := r.Header.Get(InstanceHeader); instanceID != "" {
				next.ServeHTTP(w, r.WithContext(WithInstanceID(ctx, instanceID)))
				return
			}

			host := r.Host
			if i := strings.LastIndex(host, ":"); i > 0 {
				host = host[:i]
			}
			instanceID, err := resolver.InstanceIDByHost(ctx, host)
			if err != nil || instanceID == "" {
				http.Error(w, "instance not found for host", http.StatusNotFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithInstanceID(ctx, instanceID)))
		})
	}
}

// CheckSameInstance validates that a loaded aggregate belongs to the
// instance of the current context. Cross-instance reads surface as
// not-found so existence does not leak across tenants.
func CheckSameInstance(ctx context.Context, aggregate domain.Aggregate) error {
	instanceID, err := InstanceID(ctx)
	if err != nil {
		return err
	}
	if aggregate.InstanceID() != instanceID {
		return domain.NotFound("TENANT-CrossInstance", "aggregate not found")
	}
	return nil
}
