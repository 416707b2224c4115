package runner

import "context"

// Service is a component with a managed lifecycle. Start blocks until
// the service is ready; Stop must respect the context deadline.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HealthChecker is implemented by services that can report health.
type HealthChecker interface {
	Service

	HealthCheck(ctx context.Context) error
}
