package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// GeneratorChecker checks LLM provider availability.
type GeneratorChecker interface {
	HealthCheck(ctx context.Context) error
}
