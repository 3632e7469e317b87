package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// StudyCounter reports the number of searchable studies.
type StudyCounter interface {
	CountPublished(ctx context.Context) (int, error)
}
